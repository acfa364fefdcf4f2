package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"review_sync/internal/app"
	"review_sync/internal/domain"
)

func row(author string) map[string]any {
	return map[string]any{"author": author, "text": "x"}
}

func TestRetrieve_FollowsCursorUntilExhausted(t *testing.T) {
	tag := domain.SourceRenderedPage
	src := &scriptedSource{tag: tag, pages: []*domain.Page{
		page(tag, "2", row("a")),
		page(tag, "3", row("b"), row("c")),
		page(tag, "", row("d")),
	}}
	sl := &sleepRecorder{}
	lim := app.RetrievalLimits{MaxPages: 10, DelayMin: 10 * time.Millisecond, DelayMax: 20 * time.Millisecond}

	got := app.Retrieve(context.Background(), src, domain.PageRequest{AppID: "1"}, lim, sl.sleep)

	if got.Err != nil || got.Pages != 3 || len(got.Candidates) != 4 || got.Source != tag {
		t.Fatalf("unexpected retrieval: %+v", got)
	}
	if diff := cmp.Diff([]string{"", "2", "3"}, src.cursors); diff != "" {
		t.Fatalf("cursor threading (-want +got):\n%s", diff)
	}
	// pauses only between pages
	if len(sl.delays) != 2 {
		t.Fatalf("expected 2 pauses, got %v", sl.delays)
	}
	for _, d := range sl.delays {
		if d < lim.DelayMin || d > lim.DelayMax {
			t.Fatalf("pause %v outside [%v, %v]", d, lim.DelayMin, lim.DelayMax)
		}
	}
}

func TestRetrieve_StopsOnEmptyPage(t *testing.T) {
	tag := domain.SourceFeed
	src := &scriptedSource{tag: tag, pages: []*domain.Page{
		page(tag, "2", row("a")),
		page(tag, "3"),
		page(tag, "", row("never")),
	}}
	got := app.Retrieve(context.Background(), src, domain.PageRequest{}, app.RetrievalLimits{MaxPages: 10}, (&sleepRecorder{}).sleep)
	if got.Pages != 2 || len(got.Candidates) != 1 || src.calls() != 2 {
		t.Fatalf("expected stop after the empty page: %+v calls=%d", got, src.calls())
	}
}

func TestRetrieve_MaxPages(t *testing.T) {
	tag := domain.SourceFeed
	src := &scriptedSource{tag: tag, pages: []*domain.Page{
		page(tag, "2", row("a")), page(tag, "3", row("b")), page(tag, "4", row("c")),
	}}
	got := app.Retrieve(context.Background(), src, domain.PageRequest{}, app.RetrievalLimits{MaxPages: 2}, (&sleepRecorder{}).sleep)
	if got.Pages != 2 || len(got.Candidates) != 2 || src.calls() != 2 {
		t.Fatalf("expected exactly 2 pages: %+v", got)
	}
}

func TestRetrieve_MaxItemsTruncates(t *testing.T) {
	tag := domain.SourcePrimaryAPI
	src := &scriptedSource{tag: tag, pages: []*domain.Page{
		page(tag, "t1", row("a"), row("b")),
		page(tag, "t2", row("c"), row("d")),
		page(tag, "t3", row("e"), row("f")),
	}}
	got := app.Retrieve(context.Background(), src, domain.PageRequest{}, app.RetrievalLimits{MaxItems: 3}, (&sleepRecorder{}).sleep)
	if len(got.Candidates) != 3 || src.calls() != 2 {
		t.Fatalf("expected 3 candidates from 2 pages, got %d from %d", len(got.Candidates), src.calls())
	}
	if got.Candidates[2].Fields["author"] != "c" {
		t.Fatalf("truncation must keep retrieval order: %+v", got.Candidates)
	}
}

func TestRetrieve_FailureKeepsPartialResults(t *testing.T) {
	tag := domain.SourcePrimaryAPI
	boom := errors.New("503 from upstream")
	src := &scriptedSource{tag: tag, err: boom, pages: []*domain.Page{
		page(tag, "t1", row("a"), row("b")),
		nil,
	}}
	got := app.Retrieve(context.Background(), src, domain.PageRequest{}, app.RetrievalLimits{MaxPages: 5}, (&sleepRecorder{}).sleep)
	if !errors.Is(got.Err, boom) {
		t.Fatalf("expected terminal error, got %v", got.Err)
	}
	if got.Pages != 1 || len(got.Candidates) != 2 {
		t.Fatalf("expected the first page kept: %+v", got)
	}
}

func TestRetrieve_CancelledBetweenPages(t *testing.T) {
	tag := domain.SourceFeed
	src := &scriptedSource{tag: tag, pages: []*domain.Page{
		page(tag, "2", row("a")), page(tag, "3", row("b")),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := app.Retrieve(ctx, src, domain.PageRequest{}, app.RetrievalLimits{MaxPages: 5}, (&sleepRecorder{}).sleep)
	if !errors.Is(got.Err, context.Canceled) || len(got.Candidates) != 1 || src.calls() != 1 {
		t.Fatalf("expected stop at the first pause: %+v", got)
	}
}
