package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kozaktomas/facegroup/internal/clustering"
)

func TestMessageTemplate(t *testing.T) {
	n := clustering.Notification{
		DetectionID: "det-1",
		ClusterID:   "cluster-1",
		OwnerUserID: "u1",
		Name:        "Jan",
	}

	var body bytes.Buffer
	if err := messageTemplate.Execute(&body, n); err != nil {
		t.Fatalf("template error: %v", err)
	}
	text := body.String()
	if !strings.Contains(text, "Hi Jan,") {
		t.Errorf("greeting missing name: %q", text)
	}
	if !strings.Contains(text, "det-1") || !strings.Contains(text, "cluster-1") {
		t.Errorf("identifiers missing from body: %q", text)
	}
}

func TestMessageTemplateWithoutName(t *testing.T) {
	n := clustering.Notification{
		DetectionID: "det-1",
		ClusterID:   "cluster-1",
		OwnerUserID: "u1",
	}

	var body bytes.Buffer
	if err := messageTemplate.Execute(&body, n); err != nil {
		t.Fatalf("template error: %v", err)
	}
	if !strings.Contains(body.String(), "Hi,") {
		t.Errorf("greeting should fall back to plain Hi: %q", body.String())
	}
}

func TestNewSender(t *testing.T) {
	if _, err := NewSender(nil); err == nil {
		t.Error("NewSender(nil) should fail")
	}
	if _, err := NewSender([]string{"not-a-service-url"}); err == nil {
		t.Error("NewSender with an invalid URL should fail")
	}

	sender, err := NewSender([]string{"logger://"})
	if err != nil {
		t.Fatalf("NewSender(logger://) error: %v", err)
	}
	err = sender.FaceDetected(context.Background(), clustering.Notification{
		DetectionID: "det-1",
		ClusterID:   "cluster-1",
		OwnerUserID: "u1",
		Name:        "Jan",
	})
	if err != nil {
		t.Errorf("FaceDetected() error: %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	err := LogNotifier{}.FaceDetected(context.Background(), clustering.Notification{
		DetectionID: "det-1",
		ClusterID:   "cluster-1",
		OwnerUserID: "u1",
	})
	if err != nil {
		t.Errorf("FaceDetected() error: %v", err)
	}
}
