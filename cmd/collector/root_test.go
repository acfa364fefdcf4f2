package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"review_sync/internal/domain"
	"review_sync/internal/shared"
)

func fakeStores(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/apps/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"reviewId":"99","userName":"Bia","text":"Travando direto","score":1}]`)
	})
	mux.HandleFunc("/br/rss/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/page=1/") {
			_, _ = io.WriteString(w, `{"feed":{"entry":{"author":{"name":{"label":"Ana"}},"content":{"label":"Ótimo app"}}}}`)
			return
		}
		_, _ = io.WriteString(w, `{"feed":{}}`)
	})
	mux.HandleFunc("/br/app/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<div class="we-customer-review"><span class="we-customer-review__user">Ana</span>`+
			`<blockquote class="we-customer-review__body">Ótimo app!!</blockquote>`+
			`<p class="we-customer-review__response-body">Obrigado</p></div>`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func setEnv(t *testing.T, base string) {
	t.Setenv("APP_ID", "1667555669")
	t.Setenv("LOCALE", "pt-BR")
	t.Setenv("PLAY_API_BASE_URL", base)
	t.Setenv("FEED_BASE_URL", base)
	t.Setenv("STORE_PAGE_BASE_URL", base)
	t.Setenv("PAGE_DELAY_MIN_MS", "0")
	t.Setenv("PAGE_DELAY_MAX_MS", "0")
	t.Setenv("SOURCE_RPS", "100")
	t.Setenv("WORKER_IMPORT_URL", "")
	t.Setenv("IMPORT_TOKEN", "")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PUSHGATEWAY_URL", "")
	t.Setenv("METRICS_ADDR", "")
}

func TestCollector_DryRunWritesMergedBatch(t *testing.T) {
	ts := fakeStores(t)
	setEnv(t, ts.URL)
	out := filepath.Join(t.TempDir(), "batch.json")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--dry-run", "--out", out})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read batch: %v", err)
	}
	var got []map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("batch is not a JSON array: %v", err)
	}
	if len(got) != 2 || got[0]["author"] != "Bia" || got[1]["developerResponseText"] != "Obrigado" {
		t.Fatalf("unexpected batch: %s", b)
	}
}

func TestCollector_DeliveryRequiresIngestConfig(t *testing.T) {
	setEnv(t, "http://127.0.0.1:1")
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	err := cmd.ExecuteContext(context.Background())
	if !errors.Is(err, domain.ErrConfigMissing) || !strings.Contains(err.Error(), "IMPORT_TOKEN") {
		t.Fatalf("expected missing config error, got %v", err)
	}
}

func TestCollector_RejectsUnknownSource(t *testing.T) {
	setEnv(t, "http://127.0.0.1:1")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--dry-run", "--source", "twitter"})
	if err := cmd.ExecuteContext(context.Background()); err == nil || !strings.Contains(err.Error(), "twitter") {
		t.Fatalf("expected unknown source error, got %v", err)
	}
}

func TestSourcePlans(t *testing.T) {
	cfg := shared.Config{AndroidAppID: "br.com.example", IOSAppID: "123", FeedMaxPages: 3, MaxReviews: 160, Country: "br", Lang: "pt"}

	plans := sourcePlans(cfg, nil)
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(plans))
	}
	if plans[0].Adapter.Tag() != domain.SourcePrimaryAPI || plans[0].Request.AppID != "br.com.example" || plans[0].Limits.MaxPages != 0 {
		t.Fatalf("unexpected primary plan: %+v", plans[0])
	}
	if plans[1].Limits.MaxPages != 3 || plans[2].Limits.MaxPages != 1 || plans[2].Request.AppID != "123" {
		t.Fatalf("unexpected store plans: %+v %+v", plans[1].Limits, plans[2].Limits)
	}

	only := sourcePlans(cfg, []string{"feed"})
	if len(only) != 1 || only[0].Adapter.Tag() != domain.SourceFeed {
		t.Fatalf("expected only the feed, got %d plans", len(only))
	}

	cfg.AndroidAppID = ""
	if got := sourcePlans(cfg, nil); len(got) != 2 {
		t.Fatalf("expected iOS-only plans, got %d", len(got))
	}
}
