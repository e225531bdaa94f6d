package limiter

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestInMemoryAllowWithinBudget(t *testing.T) {
	l := NewInMemory(time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "w1")
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, retry, err := l.Allow(ctx, "w1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("fourth attempt should be limited")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("retry-after out of range: %v", retry)
	}

	// other wallets are unaffected
	if ok, _, _ := l.Allow(ctx, "w2"); !ok {
		t.Fatal("independent wallet limited")
	}
}

func TestInMemoryWindowReset(t *testing.T) {
	l := NewInMemory(time.Minute, 1)
	ctx := context.Background()

	base := time.Now()
	l.SetNow(func() time.Time { return base })
	if ok, _, _ := l.Allow(ctx, "w1"); !ok {
		t.Fatal("first attempt limited")
	}
	if ok, _, _ := l.Allow(ctx, "w1"); ok {
		t.Fatal("second attempt within window allowed")
	}

	l.SetNow(func() time.Time { return base.Add(2 * time.Minute) })
	if ok, _, _ := l.Allow(ctx, "w1"); !ok {
		t.Fatal("attempt after window expiry limited")
	}
}

func TestPGAllow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	l := NewPG(db, time.Minute, 5)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO nonce_limiter")).
		WithArgs("w1", "1m0s").
		WillReturnRows(sqlmock.NewRows([]string{"issue_count", "window_start"}).AddRow(3, time.Now()))

	ok, _, err := l.Allow(context.Background(), "w1")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGLimitExceeded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	l := NewPG(db, time.Minute, 5)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO nonce_limiter")).
		WithArgs("w1", "1m0s").
		WillReturnRows(sqlmock.NewRows([]string{"issue_count", "window_start"}).AddRow(6, time.Now().Add(-10*time.Second)))

	ok, retry, err := l.Allow(context.Background(), "w1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected limit exceeded")
	}
	if retry <= 0 {
		t.Fatalf("retry-after = %v", retry)
	}
}
