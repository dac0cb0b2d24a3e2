// Package notify delivers "you appear in a new photo" notifications when a
// detection lands in a cluster that a user already owns. Delivery goes
// through shoutrrr so one configuration covers email, chat and push targets.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"text/template"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/kozaktomas/facegroup/internal/clustering"
)

const messageTitle = "You were recognized in a new photo"

// Message body sent to the notification targets.
var messageTemplate = template.Must(template.New("face-detected").Parse(
	`Hi{{if .Name}} {{.Name}}{{end}},

a new photo was uploaded and we recognized you in it.
Detection {{.DetectionID}} was added to your collection ({{.ClusterID}}).`,
))

// Sender delivers notifications to one or more shoutrrr URLs.
type Sender struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewSender builds a sender for the given shoutrrr service URLs.
func NewSender(urls []string) (*Sender, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one notification URL is required")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("creating notification sender: %w", err)
	}
	// shoutrrr logs the full service URLs which may carry credentials.
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &Sender{urls: slices.Clone(urls), sender: sender}, nil
}

// FaceDetected renders and sends the notification for one detection.
func (s *Sender) FaceDetected(ctx context.Context, n clustering.Notification) error {
	var body bytes.Buffer
	if err := messageTemplate.Execute(&body, n); err != nil {
		return fmt.Errorf("rendering notification: %w", err)
	}

	params := stypes.Params{}
	params.SetTitle(messageTitle)

	errs := s.sender.Send(body.String(), &params)
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
	}
	return nil
}

// LogNotifier writes notifications to the log. Used when no notification
// URLs are configured.
type LogNotifier struct{}

// FaceDetected logs the event.
func (LogNotifier) FaceDetected(ctx context.Context, n clustering.Notification) error {
	log.Printf("notification: detection %s assigned to cluster %s owned by %s",
		n.DetectionID, n.ClusterID, n.OwnerUserID)
	return nil
}

var (
	_ clustering.Notifier = (*Sender)(nil)
	_ clustering.Notifier = LogNotifier{}
)
