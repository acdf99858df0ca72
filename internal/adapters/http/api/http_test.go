package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/proctor/internal/adapters/http/api"
	service "github.com/okian/proctor/internal/app"
	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/types"
	"github.com/okian/proctor/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type caller struct {
	id   int64
	role model.Role
}

var (
	student    = caller{id: 7, role: model.RoleStudent}
	other      = caller{id: 8, role: model.RoleStudent}
	instructor = caller{id: 100, role: model.RoleInstructor}
	admin      = caller{id: 1, role: model.RoleAdmin}
	anonymous  = caller{}
)

type harness struct {
	mux *http.ServeMux
	svc *service.Service
}

func newHarness() *harness {
	svc := service.New(service.WithWorkerCount(2))
	So(svc.Start(context.Background()), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc, func(ctx context.Context) any { return svc.GetStats(ctx) }).Register(context.Background(), mux)
	return &harness{mux: mux, svc: svc}
}

func (h *harness) do(who caller, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if who.id != 0 {
		req.Header.Set(api.HeaderUserID, fmt.Sprint(who.id))
		req.Header.Set(api.HeaderUserRole, string(who.role))
	}
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
	So(body.Message, ShouldNotBeEmpty)
	return body.Code
}

// activeAssessment creates and activates an assessment through the API.
func (h *harness) activeAssessment() model.Assessment {
	w := h.do(instructor, "POST", "/api/assessments", `{"title":"Final","description":"Chapters 1-5","duration":90}`)
	So(w.Code, ShouldEqual, http.StatusCreated)
	a := decode[model.Assessment](w)
	So(a.Active, ShouldBeFalse)

	w = h.do(instructor, "PATCH", fmt.Sprintf("/api/assessments/%d", a.ID), `{"active":true}`)
	So(w.Code, ShouldEqual, http.StatusOK)
	return decode[model.Assessment](w)
}

func (h *harness) openSession(assessmentID int64) model.Session {
	w := h.do(student, "POST", "/api/sessions", fmt.Sprintf(`{"assessmentId":%d,"consentGiven":true,"startTime":"2024-05-01T09:00:00Z"}`, assessmentID))
	So(w.Code, ShouldEqual, http.StatusCreated)
	return decode[model.Session](w)
}

func TestServer_Infrastructure(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		h := newHarness()
		defer h.svc.Stop()

		Convey("Then /healthz serves Prometheus metrics", func() {
			w := h.do(anonymous, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "proctor_monitor_")
		})

		Convey("And /stats serves service statistics", func() {
			w := h.do(anonymous, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			stats := decode[map[string]any](w)
			So(stats["started"], ShouldEqual, true)
			So(stats["workers"], ShouldEqual, float64(2))
		})

		Convey("And every response carries a request id", func() {
			w := h.do(anonymous, "GET", "/stats", "")
			So(w.Header().Get(api.HeaderRequestID), ShouldNotBeEmpty)

			req := httptest.NewRequest("GET", "/stats", http.NoBody)
			req.Header.Set(api.HeaderRequestID, "req-42")
			rec := httptest.NewRecorder()
			h.mux.ServeHTTP(rec, req)
			So(rec.Header().Get(api.HeaderRequestID), ShouldEqual, "req-42")
		})

		Convey("And unknown routes are 404", func() {
			w := h.do(anonymous, "GET", "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_Sessions(t *testing.T) {
	Convey("Given an active assessment", t, func() {
		h := newHarness()
		defer h.svc.Stop()
		a := h.activeAssessment()

		Convey("When a student opens a session with consent", func() {
			s := h.openSession(a.ID)

			Convey("Then it is created clean and owned by them", func() {
				So(s.ID, ShouldBeGreaterThan, 0)
				So(s.UserID, ShouldEqual, student.id)
				So(s.RiskScore, ShouldEqual, 0)
				So(s.BehavioralData, ShouldBeEmpty)
				So(s.EndTime, ShouldBeNil)
			})

			Convey("And the owner, instructors and admins can read it", func() {
				path := fmt.Sprintf("/api/sessions/%d", s.ID)
				So(h.do(student, "GET", path, "").Code, ShouldEqual, http.StatusOK)
				So(h.do(instructor, "GET", path, "").Code, ShouldEqual, http.StatusOK)
				So(h.do(admin, "GET", path, "").Code, ShouldEqual, http.StatusOK)

				w := h.do(other, "GET", path, "")
				So(w.Code, ShouldEqual, http.StatusForbidden)
				So(errorCode(w), ShouldEqual, "forbidden")
			})

			Convey("And posted events are recorded and scored", func() {
				path := fmt.Sprintf("/api/sessions/%d/events", s.ID)
				for ts := 1; ts <= 3; ts++ {
					w := h.do(student, "POST", path, fmt.Sprintf(`{"eventId":"t%d","type":"tabswitch","timestamp":%d}`, ts, ts))
					So(w.Code, ShouldEqual, http.StatusAccepted)
				}

				var got model.Session
				deadline := time.Now().Add(3 * time.Second)
				for time.Now().Before(deadline) {
					got = decode[model.Session](h.do(student, "GET", fmt.Sprintf("/api/sessions/%d", s.ID), ""))
					if len(got.BehavioralData) == 3 {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(got.BehavioralData, ShouldHaveLength, 3)
				So(got.RiskScore, ShouldEqual, 48)
			})

			Convey("And malformed events are rejected", func() {
				path := fmt.Sprintf("/api/sessions/%d/events", s.ID)
				w := h.do(student, "POST", path, `{"type":"scroll","timestamp":1}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "validation_error")

				w = h.do(student, "POST", path, `{"type":`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And only the owner may post events", func() {
				w := h.do(other, "POST", fmt.Sprintf("/api/sessions/%d/events", s.ID), `{"type":"blur","timestamp":1}`)
				So(w.Code, ShouldEqual, http.StatusForbidden)
			})

			Convey("And the owner can end it once", func() {
				path := fmt.Sprintf("/api/sessions/%d", s.ID)
				w := h.do(student, "PATCH", path, `{"endTime":"2024-05-01T10:00:00Z"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				ended := decode[model.Session](w)
				So(ended.EndTime, ShouldNotBeNil)
				So(ended.EndTime.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)), ShouldBeTrue)

				w = h.do(student, "PATCH", path, `{}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And an empty end request ends it now", func() {
				w := h.do(student, "PATCH", fmt.Sprintf("/api/sessions/%d", s.ID), "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[model.Session](w).EndTime, ShouldNotBeNil)
			})
		})

		Convey("When consent is not given", func() {
			w := h.do(student, "POST", "/api/sessions", fmt.Sprintf(`{"assessmentId":%d,"consentGiven":false}`, a.ID))

			Convey("Then the request fails validation and nothing is created", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "validation_error")
				So(h.svc.GetStats(context.Background()).Sessions, ShouldEqual, 0)
			})
		})

		Convey("When the caller is not a student", func() {
			w := h.do(instructor, "POST", "/api/sessions", fmt.Sprintf(`{"assessmentId":%d,"consentGiven":true}`, a.ID))
			So(w.Code, ShouldEqual, http.StatusForbidden)
		})

		Convey("When the caller has no identity", func() {
			w := h.do(anonymous, "POST", "/api/sessions", fmt.Sprintf(`{"assessmentId":%d,"consentGiven":true}`, a.ID))
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(errorCode(w), ShouldEqual, "unauthenticated")
		})

		Convey("When the session does not exist", func() {
			w := h.do(admin, "GET", "/api/sessions/999", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorCode(w), ShouldEqual, "not_found")

			w = h.do(admin, "GET", "/api/sessions/abc", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_Assessments(t *testing.T) {
	Convey("Given an instructor with one active and one draft assessment", t, func() {
		h := newHarness()
		defer h.svc.Stop()
		a := h.activeAssessment()
		w := h.do(instructor, "POST", "/api/assessments", `{"title":"Draft","duration":20}`)
		So(w.Code, ShouldEqual, http.StatusCreated)

		Convey("Then students only see the active one", func() {
			list := decode[[]model.Assessment](h.do(student, "GET", "/api/assessments/active", ""))
			So(list, ShouldHaveLength, 1)
			So(list[0].ID, ShouldEqual, a.ID)
		})

		Convey("And the instructor sees both", func() {
			list := decode[[]model.Assessment](h.do(instructor, "GET", "/api/assessments/instructor", ""))
			So(list, ShouldHaveLength, 2)
		})

		Convey("And another instructor cannot patch them", func() {
			intruder := caller{id: 101, role: model.RoleInstructor}
			w := h.do(intruder, "PATCH", fmt.Sprintf("/api/assessments/%d", a.ID), `{"active":false}`)
			So(w.Code, ShouldEqual, http.StatusForbidden)
		})

		Convey("And students cannot create assessments", func() {
			w := h.do(student, "POST", "/api/assessments", `{"title":"Mine","duration":5}`)
			So(w.Code, ShouldEqual, http.StatusForbidden)
		})

		Convey("And invalid input is rejected", func() {
			w := h.do(instructor, "POST", "/api/assessments", `{"title":"","duration":5}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_Analytics(t *testing.T) {
	Convey("Given two scored sessions", t, func() {
		h := newHarness()
		defer h.svc.Stop()
		ctx := context.Background()
		a := h.activeAssessment()
		calm := h.openSession(a.ID)
		risky := h.openSession(a.ID)
		So(h.svc.RecordEvent(ctx, risky.ID, model.BehavioralEvent{Type: model.EventBlur, Timestamp: 1}), ShouldBeNil)
		So(h.svc.RecordEvent(ctx, calm.ID, model.BehavioralEvent{Type: model.EventFocus, Timestamp: 1}), ShouldBeNil)

		Convey("When an admin reads the risk board", func() {
			w := h.do(admin, "GET", "/api/analytics/risk?limit=5", "")

			Convey("Then sessions are ranked by risk", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				entries := decode[[]types.RiskEntry](w)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].SessionID, ShouldEqual, risky.ID)
				So(entries[0].RiskScore, ShouldEqual, 14)
				So(entries[1].SessionID, ShouldEqual, calm.ID)
			})
		})

		Convey("When an admin reads one session's rank", func() {
			w := h.do(admin, "GET", fmt.Sprintf("/api/analytics/risk/%d", calm.ID), "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[types.RiskEntry](w).Rank, ShouldEqual, 2)
		})

		Convey("When the limit is invalid", func() {
			So(h.do(admin, "GET", "/api/analytics/risk?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(h.do(admin, "GET", "/api/analytics/risk?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a non-admin asks", func() {
			So(h.do(instructor, "GET", "/api/analytics/risk", "").Code, ShouldEqual, http.StatusForbidden)
		})
	})
}

// failingDeps returns an internal error from every call.
type failingDeps struct{ api.Dependencies }

func (failingDeps) ActiveAssessments(context.Context) ([]model.Assessment, error) {
	return nil, errors.New("disk on fire")
}

func TestServer_InternalErrors(t *testing.T) {
	Convey("Given a dependency that fails unexpectedly", t, func() {
		mux := http.NewServeMux()
		api.NewServer(failingDeps{}, nil).Register(context.Background(), mux)

		req := httptest.NewRequest("GET", "/api/assessments/active", http.NoBody)
		req.Header.Set(api.HeaderUserID, "7")
		req.Header.Set(api.HeaderUserRole, "student")
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		Convey("Then a 500 is returned without the cause", func() {
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldNotContainSubstring, "disk on fire")
		})
	})
}
