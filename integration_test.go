//go:build integration

package campuschat_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirbrams/campuschat"
)

// helpers ---------------------------------------------------------------

func testBaseURL(t *testing.T) string {
	t.Helper()
	base := os.Getenv("CAMPUSCHAT_BASE_URL_TEST")
	if base == "" {
		t.Fatal("CAMPUSCHAT_BASE_URL_TEST environment variable is required")
	}
	return base
}

func testActor(t *testing.T) campuschat.Actor {
	t.Helper()
	id := os.Getenv("CAMPUSCHAT_USER_ID_TEST")
	if id == "" {
		t.Fatal("CAMPUSCHAT_USER_ID_TEST environment variable is required")
	}
	role := campuschat.Role(os.Getenv("CAMPUSCHAT_ROLE_TEST"))
	if !role.Valid() {
		role = campuschat.RoleStudent
	}
	return campuschat.Actor{ID: id, Name: os.Getenv("CAMPUSCHAT_USER_NAME_TEST"), Role: role}
}

func newIntegrationClient(t *testing.T) *campuschat.Client {
	t.Helper()
	return campuschat.NewClient(testActor(t), campuschat.WithBaseURL(testBaseURL(t)))
}

type logRenderer struct{ t *testing.T }

func (r logRenderer) OnConversationsUpdated(list []campuschat.Conversation) {
	r.t.Logf("conversations: %d", len(list))
}

func (r logRenderer) OnMessagesUpdated(id string, msgs []campuschat.Message) {
	r.t.Logf("conversation %s: %d messages", id, len(msgs))
}

func (r logRenderer) OnConnectionStateChanged(id string, state campuschat.TransportState) {
	r.t.Logf("conversation %s: %s", id, state)
}

// =======================================================================
// Directory and history
// =======================================================================

func TestIntegration_DirectoryAndHistory(t *testing.T) {
	client := newIntegrationClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	convs, err := campuschat.NewDirectory(client).Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	t.Logf("conversations=%d unread=%d", len(convs), campuschat.UnreadTotal(convs))
	if len(convs) == 0 {
		t.Skip("user has no conversations")
	}

	msgs, err := client.Messages.History(ctx, string(convs[0].ID), 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	for _, m := range msgs {
		if m.Status == "" {
			t.Errorf("history message without status: %+v", m)
		}
	}
}

// =======================================================================
// Live session
// =======================================================================

func TestIntegration_LiveSession(t *testing.T) {
	client := newIntegrationClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	coord := campuschat.NewCoordinator(client, logRenderer{t}, nil)
	defer coord.Close()

	convs, err := coord.RefreshConversations(ctx)
	if err != nil {
		t.Fatalf("RefreshConversations: %v", err)
	}
	if len(convs) == 0 {
		t.Skip("user has no conversations")
	}
	if err := coord.Select(ctx, convs[0]); err != nil {
		t.Fatalf("Select: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for coord.State() != campuschat.StateOpen && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if coord.State() != campuschat.StateOpen {
		t.Fatalf("socket did not open, state %s", coord.State())
	}

	body := "integration " + time.Now().Format(time.RFC3339Nano)
	if _, err := coord.SendCurrent(ctx, body); err != nil {
		t.Fatalf("SendCurrent: %v", err)
	}
	if err := coord.LoadOlder(ctx); err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	t.Logf("cached=%d page=%d", len(coord.Messages()), coord.Pages().Current(string(convs[0].ID)))
}
