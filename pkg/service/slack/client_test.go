package slack_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/contrack/pkg/service/slack"
	slackgo "github.com/slack-go/slack"
)

func TestNew(t *testing.T) {
	t.Run("returns error when token is empty", func(t *testing.T) {
		_, err := slack.New("")
		gt.Value(t, err).NotNil()
	})

	t.Run("creates client when token is provided", func(t *testing.T) {
		c, err := slack.New("test-token")
		gt.NoError(t, err).Required()
		gt.Value(t, c).NotNil()
	})
}

func TestToProfile(t *testing.T) {
	user := &slackgo.User{
		Name:     "jane.doe",
		RealName: "Jane Doe",
		Profile: slackgo.UserProfile{
			RealName:    "Jane Doe",
			DisplayName: "jane",
			Title:       "VP Eng at Acme",
		},
	}

	p := slack.ToProfile(user)
	gt.Value(t, p.Name).Equal("Jane Doe")
	gt.Value(t, p.Handle).Equal("jane")
	gt.Value(t, p.Bio).Equal("VP Eng at Acme")

	bare := slack.ToProfile(&slackgo.User{Name: "bob"})
	gt.Value(t, bare.Handle).Equal("bob")
	gt.Value(t, bare.Name).Equal("")
}

func TestLookupProfile_Caches(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"user": map[string]any{
				"id":   r.FormValue("user"),
				"name": "jane.doe",
				"profile": map[string]any{
					"real_name":    "Jane Doe",
					"display_name": "jane",
					"title":        "VP Eng at Acme",
				},
			},
		})
	}))
	defer server.Close()

	c, err := slack.New("xoxb-test", slack.WithAPIURL(server.URL+"/"), slack.WithCacheTTL(time.Minute))
	gt.NoError(t, err).Required()

	ctx := context.Background()
	p, err := c.LookupProfile(ctx, "U100")
	gt.NoError(t, err).Required()
	gt.Value(t, p.Bio).Equal("VP Eng at Acme")

	_, err = c.LookupProfile(ctx, "U100")
	gt.NoError(t, err).Required()
	gt.Value(t, calls.Load()).Equal(int32(1))

	_, err = c.LookupProfile(ctx, "U200")
	gt.NoError(t, err).Required()
	gt.Value(t, calls.Load()).Equal(int32(2))
}

func TestIntegration(t *testing.T) {
	token := os.Getenv("TEST_SLACK_BOT_TOKEN")
	if token == "" {
		t.Skip("TEST_SLACK_BOT_TOKEN is not set")
	}
	userID := os.Getenv("TEST_SLACK_USER_ID")
	if userID == "" {
		t.Skip("TEST_SLACK_USER_ID is not set")
	}

	c, err := slack.New(token)
	gt.NoError(t, err).Required()

	p, err := c.LookupProfile(context.Background(), userID)
	gt.NoError(t, err).Required()
	gt.String(t, p.Handle).NotEqual("")
}
