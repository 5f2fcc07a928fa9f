package submit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/quizchain/quizchain/internal/solver"
)

func TestSubmitPostsAnswer(t *testing.T) {
	var got map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"correct": true,
			"url":     "https://quiz.example/next",
		})
	}))
	defer ts.Close()

	s := New(5 * time.Second)
	verdict, err := s.Submit(context.Background(), ts.URL, solver.GraderSubmission{
		Email:  "student@example.com",
		Secret: "s3cret",
		URL:    "https://quiz.example/q1",
		Answer: int64(42),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !verdict.Correct || verdict.NextURL != "https://quiz.example/next" {
		t.Fatalf("verdict = %+v", verdict)
	}
	if got["email"] != "student@example.com" || got["secret"] != "s3cret" {
		t.Fatalf("payload = %v", got)
	}
	if got["answer"] != float64(42) {
		t.Fatalf("answer = %v (%T)", got["answer"], got["answer"])
	}
}

func TestSubmitGraderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	s := New(5 * time.Second)
	_, err := s.Submit(context.Background(), ts.URL, solver.GraderSubmission{})
	if !errors.Is(err, solver.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestTypedAnswer(t *testing.T) {
	cases := []struct {
		answer string
		kind   solver.AnswerKind
		want   interface{}
	}{
		{"42", solver.AnswerNumber, int64(42)},
		{"3.5", solver.AnswerNumber, 3.5},
		{"not a number", solver.AnswerNumber, "not a number"},
		{"true", solver.AnswerBoolean, true},
		{"false", solver.AnswerBoolean, false},
		{`{"a":1}`, solver.AnswerJSON, map[string]interface{}{"a": float64(1)}},
		{"broken json", solver.AnswerJSON, "broken json"},
		{"Paris", solver.AnswerString, "Paris"},
	}
	for _, tc := range cases {
		got := TypedAnswer(tc.answer, tc.kind)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("TypedAnswer(%q, %s) = %v (%T), want %v (%T)", tc.answer, tc.kind, got, got, tc.want, tc.want)
		}
	}
}
