package app_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/app"
	"github.com/Spok95/school-progress/internal/db/memdb"
	"github.com/Spok95/school-progress/internal/gamification"
	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/notify"
	"github.com/Spok95/school-progress/internal/reminders"
)

const secret = "s3cret"

var tashkent = time.FixedZone("UZT", 5*3600)

type fixture struct {
	store *memdb.DB
	srv   *httptest.Server
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memdb.Open()
	now := func() time.Time { return time.Date(2025, time.March, 15, 9, 0, 0, 0, tashkent) }
	log := zap.NewNop()

	eng := gamification.NewEngine(store, log, tashkent).WithClock(now)
	disp := notify.NewDispatcher(log)
	opts := reminders.Options{Hours: []int{9, 20}, Location: tashkent, PlatformURL: "https://school.uz"}

	h := app.NewRouter(app.Deps{
		Log:              log,
		Store:            store,
		Engine:           eng,
		Email:            notify.NewEmail(notify.EmailConfig{}),
		SMS:              notify.NewSMS(notify.SMSConfig{}),
		Push:             notify.NewPush(notify.PushConfig{}, store, log),
		PaymentJob:       reminders.NewPaymentJob(store, disp, log, opts).WithClock(now),
		SalaryJob:        reminders.NewSalaryJob(store, disp, log, reminders.Options{Hours: []int{12}, Location: tashkent}).WithClock(now),
		CronSecret:       secret,
		LeaderboardLimit: 10,
		Location:         tashkent,
		Now:              now,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return fixture{store: store, srv: srv}
}

func (f fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, b)
	}
}

func TestHealthAndAuth(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	expectStatus(t, resp, http.StatusOK)

	resp2, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp2.Body.Close() }()
	expectStatus(t, resp2, http.StatusOK)

	resp3, err := http.Get(f.srv.URL + "/api/badges")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp3.Body.Close() }()
	expectStatus(t, resp3, http.StatusUnauthorized)

	badges := decode[[]models.Badge](t, f.do(t, http.MethodGet, "/api/badges", nil))
	if len(badges) != len(gamification.Badges) {
		t.Fatalf("badges = %d", len(badges))
	}
}

func TestAwardPointsAndProgress(t *testing.T) {
	f := newFixture(t)
	student := f.store.AddUser(models.User{FullName: "Aziza", Role: models.Student})

	resp := f.do(t, http.MethodPost, "/api/points", map[string]any{
		"user_id": student.ID, "points": 120, "source": "assignment",
	})
	expectStatus(t, resp, http.StatusOK)
	res := decode[gamification.AwardResult](t, resp)
	if res.Progress.TotalPoints != 120 || res.Progress.CurrentLevel != 2 || !res.LevelUp || res.PreviousLevel != 1 {
		t.Fatalf("award = %+v", res)
	}

	t.Run("unknown user", func(t *testing.T) {
		expectStatus(t, f.do(t, http.MethodPost, "/api/points", map[string]any{
			"user_id": uuid.New(), "points": 10, "source": "assignment",
		}), http.StatusNotFound)
	})

	t.Run("validation", func(t *testing.T) {
		cases := []map[string]any{
			{"user_id": student.ID, "points": 0, "source": "assignment"},
			{"user_id": student.ID, "points": 10},
			{"user_id": student.ID, "points": 10, "source": "assignment", "unknown": 1},
		}
		for _, body := range cases {
			expectStatus(t, f.do(t, http.MethodPost, "/api/points", body), http.StatusBadRequest)
		}
	})

	t.Run("event reward table", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/events", map[string]any{
			"user_id": student.ID, "source": "grade", "score": 95,
		})
		expectStatus(t, resp, http.StatusOK)
		res := decode[gamification.AwardResult](t, resp)
		if res.Progress.TotalPoints != 140 {
			t.Fatalf("after grade event = %+v", res.Progress)
		}
		expectStatus(t, f.do(t, http.MethodPost, "/api/events", map[string]any{
			"user_id": student.ID, "source": "bogus",
		}), http.StatusBadRequest)
	})

	t.Run("summary", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/progress/"+student.ID.String(), nil)
		expectStatus(t, resp, http.StatusOK)
		s := decode[gamification.Summary](t, resp)
		if s.LevelName != "Elementary" || s.PointsToNextLevel != 110 {
			t.Fatalf("summary = %+v", s)
		}

		expectStatus(t, f.do(t, http.MethodGet, "/api/progress/"+uuid.NewString(), nil), http.StatusNotFound)
		expectStatus(t, f.do(t, http.MethodGet, "/api/progress/not-a-uuid", nil), http.StatusBadRequest)
	})

	t.Run("history", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/progress/"+student.ID.String()+"/history?limit=1", nil)
		expectStatus(t, resp, http.StatusOK)
		h := decode[[]models.PointsEntry](t, resp)
		if len(h) != 1 || h[0].Source != gamification.SourceGrade {
			t.Fatalf("history = %+v", h)
		}
	})

	t.Run("level up notification", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/users/"+student.ID.String()+"/notifications?unread=1", nil)
		expectStatus(t, resp, http.StatusOK)
		ns := decode[[]models.Notification](t, resp)
		if len(ns) == 0 || ns[len(ns)-1].Type != models.NotifyAchievement {
			t.Fatalf("notifications = %+v", ns)
		}
		expectStatus(t, f.do(t, http.MethodPost, "/api/notifications/"+ns[0].ID.String()+"/read", nil), http.StatusNoContent)
		expectStatus(t, f.do(t, http.MethodPost, "/api/notifications/"+uuid.NewString()+"/read", nil), http.StatusNotFound)
	})

	t.Run("badges evaluate", func(t *testing.T) {
		f.store.AddSubmissions(student.ID, 1)
		resp := f.do(t, http.MethodPost, "/api/progress/"+student.ID.String()+"/badges/evaluate", nil)
		expectStatus(t, resp, http.StatusOK)
		out := decode[map[string][]models.Badge](t, resp)
		if len(out["new_badges"]) != 1 || out["new_badges"][0].ID != gamification.BadgeFirstAssignment {
			t.Fatalf("new badges = %+v", out)
		}
	})

	t.Run("reset", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/progress/"+student.ID.String()+"/reset", nil)
		expectStatus(t, resp, http.StatusOK)
		p := decode[models.Progress](t, resp)
		if p.TotalPoints != 0 || p.CurrentLevel != 1 || p.LongestStreak != 1 {
			t.Fatalf("after reset = %+v", p)
		}
	})
}

func TestLeaderboard(t *testing.T) {
	f := newFixture(t)
	group := uuid.New()
	for i, pts := range []int{30, 250, 120} {
		u := f.store.AddUser(models.User{FullName: "Student " + string(rune('A'+i)), Role: models.Student})
		f.store.AddEnrollment(models.Enrollment{GroupID: group, StudentID: u.ID, CourseStartDate: time.Now()})
		expectStatus(t, f.do(t, http.MethodPost, "/api/points", map[string]any{
			"user_id": u.ID, "points": pts, "source": "assignment",
		}), http.StatusOK)
	}

	resp := f.do(t, http.MethodGet, "/api/groups/"+group.String()+"/leaderboard?limit=2", nil)
	expectStatus(t, resp, http.StatusOK)
	out := decode[struct {
		Entries []models.LeaderboardEntry `json:"entries"`
	}](t, resp)
	if len(out.Entries) != 2 || out.Entries[0].Points != 250 || out.Entries[0].Rank != 1 || out.Entries[1].Points != 120 {
		t.Fatalf("entries = %+v", out.Entries)
	}

	resp = f.do(t, http.MethodGet, "/api/groups/"+group.String()+"/leaderboard.xlsx", nil)
	expectStatus(t, resp, http.StatusOK)
	if !strings.Contains(resp.Header.Get("Content-Disposition"), ".xlsx") {
		t.Fatalf("disposition = %q", resp.Header.Get("Content-Disposition"))
	}
	x, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = x.Close() }()
	rows, err := x.GetRows("Leaderboard")
	if err != nil || len(rows) != 4 {
		t.Fatalf("rows = %v, %v", rows, err)
	}
}

func TestRelayEndpoints(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		path   string
		body   map[string]any
		status int
		skip   bool
	}{
		{"email not configured", "/api/notify/email", map[string]any{
			"recipientEmail": "a@b.uz", "subject": "Hi", "content": "Body",
		}, http.StatusOK, true},
		{"email missing subject", "/api/notify/email", map[string]any{
			"recipientEmail": "a@b.uz", "content": "Body",
		}, http.StatusBadRequest, false},
		{"email blank content", "/api/notify/email", map[string]any{
			"recipientEmail": "a@b.uz", "subject": "Hi", "content": "   ",
		}, http.StatusBadRequest, false},
		{"sms bad phone", "/api/notify/sms", map[string]any{
			"phoneNumber": "12345", "message": "Hi",
		}, http.StatusBadRequest, false},
		{"sms not configured", "/api/notify/sms", map[string]any{
			"phoneNumber": "+998 90 123 45 67", "message": "Hi",
		}, http.StatusOK, true},
		{"push not configured", "/api/notify/push", map[string]any{
			"user_id": uuid.New(), "title": "Hi", "message": "Body",
		}, http.StatusOK, true},
		{"push bad priority", "/api/notify/push", map[string]any{
			"user_id": uuid.New(), "title": "Hi", "message": "Body", "priority": "urgent",
		}, http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, tc.path, tc.body)
			expectStatus(t, resp, tc.status)
			if tc.status != http.StatusOK {
				e := decode[map[string]string](t, resp)
				if e["error"] == "" {
					t.Fatal("empty error message")
				}
				return
			}
			out := decode[map[string]any](t, resp)
			if out["success"] != true || (out["skipped"] == true) != tc.skip {
				t.Fatalf("response = %v", out)
			}
		})
	}
}

func TestPushSubscriptionRegistration(t *testing.T) {
	f := newFixture(t)
	u := f.store.AddUser(models.User{FullName: "Timur", Role: models.Student})

	body := map[string]any{
		"endpoint": "https://push.example/abc",
		"keys":     map[string]string{"p256dh": "key", "auth": "secret"},
	}
	expectStatus(t, f.do(t, http.MethodPost, "/api/users/"+u.ID.String()+"/push-subscriptions", body), http.StatusCreated)

	subs, _ := f.store.PushSubscriptions(t.Context(), u.ID)
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example/abc" {
		t.Fatalf("subs = %+v", subs)
	}

	delete(body, "keys")
	expectStatus(t, f.do(t, http.MethodPost, "/api/users/"+u.ID.String()+"/push-subscriptions", body), http.StatusBadRequest)
}

func TestPaymentCronAndPaid(t *testing.T) {
	f := newFixture(t)
	student := f.store.AddUser(models.User{FullName: "Jasur", Role: models.Student})
	e := f.store.AddEnrollment(models.Enrollment{
		GroupName:            "IELTS-2",
		StudentID:            student.ID,
		MonthlyPaymentAmount: 600000,
		CourseStartDate:      time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
	})

	resp := f.do(t, http.MethodPost, "/api/cron/payment-reminders", nil)
	expectStatus(t, resp, http.StatusOK)
	res := decode[reminders.Result](t, resp)
	if !res.Ran || res.Processed != 1 || res.Reminded != 1 {
		t.Fatalf("first run = %+v", res)
	}

	// повторный триггер в том же слоте ничего не шлёт
	res = decode[reminders.Result](t, f.do(t, http.MethodGet, "/api/cron/payment-reminders", nil))
	if res.Reminded != 0 || res.Skipped != 1 {
		t.Fatalf("second run = %+v", res)
	}

	// зарплата в 9 утра - вне часа, без force не запускается
	res = decode[reminders.Result](t, f.do(t, http.MethodPost, "/api/cron/salary-reminders", nil))
	if res.Ran {
		t.Fatalf("salary run outside hours = %+v", res)
	}
	res = decode[reminders.Result](t, f.do(t, http.MethodPost, "/api/cron/salary-reminders?force=1", nil))
	if !res.Ran {
		t.Fatalf("forced salary run = %+v", res)
	}

	resp = f.do(t, http.MethodPost, "/api/enrollments/"+e.ID.String()+"/paid", map[string]string{"paid_on": "2025-03-15"})
	expectStatus(t, resp, http.StatusOK)
	got := f.store.Enrollment(e.ID)
	if got.PaymentStatus != models.StatusPaid || got.LastPaymentDate == nil || got.LastPaymentDate.Day() != 15 {
		t.Fatalf("enrollment = %+v", got)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/api/enrollments/"+uuid.NewString()+"/paid", nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodPost, "/api/enrollments/"+e.ID.String()+"/paid", map[string]string{"paid_on": "15.03.2025"}), http.StatusBadRequest)
}
