package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRepositoryRefreshMetrics(t *testing.T) {
	before := testutil.ToFloat64(repositoryRefreshCount)

	RepositoryRefreshFailed("metrics-test")
	RepositoryRefreshSucceeded("metrics-test", time.Now())

	if exp, act := before+2, testutil.ToFloat64(repositoryRefreshCount); exp != act {
		t.Fatalf("expected %v refreshes, got %v", exp, act)
	}

	if exp, act := 1.0, testutil.ToFloat64(repositoryRefreshFailed.WithLabelValues("metrics-test")); exp != act {
		t.Fatalf("expected %v failures, got %v", exp, act)
	}
}

func TestGitSyncMetrics(t *testing.T) {
	GitSyncFailed("metrics-test", "repo")
	GitSyncSucceeded("metrics-test", "repo", time.Now())

	if exp, act := 1.0, testutil.ToFloat64(gitSyncFailed.WithLabelValues("metrics-test")); exp != act {
		t.Fatalf("expected %v failures, got %v", exp, act)
	}
}

func TestUpdateInterval(t *testing.T) {
	RepositoryUpdateInterval("metrics-test", 90*time.Second)

	if exp, act := 90.0, testutil.ToFloat64(repositoryUpdateInterval.WithLabelValues("metrics-test")); exp != act {
		t.Fatalf("expected %v, got %v", exp, act)
	}
}
