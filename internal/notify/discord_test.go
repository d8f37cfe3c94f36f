package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordSenderPostsEmbed(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), Alert{
		Event:    "kill_switch",
		Severity: SeverityCritical,
		Title:    "Kill switch KILLED",
		Body:     "feed loss",
		Fields:   []Field{{Key: "stage", Value: "NONE"}, {Key: "limit_factor", Value: "0.00"}},
	}))

	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Equal(t, "Kill switch KILLED", embed.Title)
	assert.Equal(t, "feed loss", embed.Description)
	assert.Equal(t, discordColorCritical, embed.Color)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "stage", embed.Fields[0].Name)
	assert.Equal(t, "0.00", embed.Fields[1].Value)
}

func TestDiscordSenderColorTracksSeverity(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), Alert{Severity: SeverityWarning, Title: "Recovering"}))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, discordColorWarning, got.Embeds[0].Color)
}

func TestDiscordSenderSurfacesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid webhook", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), Alert{Severity: SeverityInfo, Title: "Title"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
