package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("ASKMYCOURSE_SERVER_URL", "")
	c := New("")
	assert.Equal(t, "http://localhost:8585", c.baseURL)

	t.Setenv("ASKMYCOURSE_SERVER_URL", "http://example.com:9000/")
	c = New("")
	assert.Equal(t, "http://example.com:9000", c.baseURL)
}

func TestAddLecture(t *testing.T) {
	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/add_lecture", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Location", "/lectures/file-9")
		_, _ = io.WriteString(w, "true\n")
	}))
	defer ts.Close()

	fileID, err := New(ts.URL).AddLecture(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, "file-9", fileID)
	assert.Equal(t, "https://youtu.be/abc", gotBody["youtube_url"])
}

func TestAsk(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "why?", req["question"])
		_, hasSession := req["chat_session_id"]
		assert.False(t, hasSession)
		_, _ = io.WriteString(w, `{"answer":"because","sources":[{"page_content":"p","metadata":{"start_time":1.5,"end_time":3,"start_idx":10,"end_idx":11,"source":"s"}}]}`)
	}))
	defer ts.Close()

	answer, err := New(ts.URL).Ask(context.Background(), "why?", "")
	require.NoError(t, err)
	assert.Equal(t, "because", answer.Answer)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, models.ChunkMetadata{StartTime: 1.5, EndTime: 3, StartIdx: 10, EndIdx: 11, Source: "s"}, answer.Sources[0].Metadata)
}

func TestAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"lecture x: not found"}`)
	}))
	defer ts.Close()

	_, err := New(ts.URL).GetLecture(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "lecture x: not found")
}

func TestListJobs_Limit(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `[]`)
	}))
	defer ts.Close()

	jobs, err := New(ts.URL).ListJobs(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Equal(t, "limit=7", gotQuery)
}

func TestWatchLectures(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lectures/watch", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		for _, status := range []string{"Transcribing", "Indexing", "Indexed"} {
			if err := conn.WriteJSON([]models.LectureSummary{{ID: "a", Status: status}}); err != nil {
				return
			}
		}
		// Wait for the client to hang up.
		_, _, _ = conn.ReadMessage()
	}))
	defer ts.Close()

	var seen []string
	err := New(ts.URL).WatchLectures(context.Background(), func(lectures []models.LectureSummary) error {
		seen = append(seen, lectures[0].Status)
		if strings.EqualFold(lectures[0].Status, "Indexed") {
			return ErrStopWatching
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Transcribing", "Indexing", "Indexed"}, seen)
}
