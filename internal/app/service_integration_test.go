package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	service "github.com/okian/proctor/internal/app"
	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

// incrementScorer returns previous+1, so any lost update shows up as a
// score lower than the number of recorded events.
type incrementScorer struct{}

func (incrementScorer) Score(_ context.Context, in scoring.Input) (scoring.Result, error) {
	return scoring.Result{Score: in.Previous + 1, Strategy: scoring.StrategyExternal}, nil
}

// gateScorer blocks until released and signals each call it enters.
type gateScorer struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateScorer) Score(ctx context.Context, in scoring.Input) (scoring.Result, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return scoring.Result{Score: in.Previous, Strategy: scoring.StrategyExternal}, nil
}

func waitForEvents(ctx context.Context, svc *service.Service, id int64, n int) model.Session {
	deadline := time.Now().Add(5 * time.Second)
	for {
		s, err := svc.GetSession(ctx, id)
		So(err, ShouldBeNil)
		if len(s.BehavioralData) >= n || time.Now().After(deadline) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServiceIntegration_Ingest(t *testing.T) {
	Convey("Given a started service with an external scorer", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				BehavioralData []json.RawMessage `json:"behavioral_data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]any{"risk_score": 7.4 * float64(len(body.BehavioralData))})
		}))
		defer srv.Close()

		engine := scoring.NewEngine(scoring.WithPrimary(scoring.NewExternalScorer(srv.URL)))
		svc := service.New(
			service.WithWorkerCount(4),
			service.WithQueueSize(256),
			service.WithScorer(engine),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		a := activeAssessment(ctx, svc)
		s := openSession(ctx, svc, a.ID)

		Convey("When events stream in with one resend", func() {
			for ts := int64(1); ts <= 5; ts++ {
				env := model.Envelope{SessionID: s.ID, EventID: fmt.Sprintf("e%d", ts), Event: event(model.EventMouseMove, ts)}
				So(svc.Ingest(ctx, env), ShouldBeNil)
			}
			resend := model.Envelope{SessionID: s.ID, EventID: "e3", Event: event(model.EventMouseMove, 3)}
			So(svc.Ingest(ctx, resend), ShouldBeNil)

			got := waitForEvents(ctx, svc, s.ID, 5)

			Convey("Then each event is recorded once in order with the external score", func() {
				So(got.BehavioralData, ShouldHaveLength, 5)
				for i, e := range got.BehavioralData {
					So(e.Timestamp, ShouldEqual, int64(i+1))
				}
				So(got.RiskScore, ShouldEqual, 37)
				So(svc.GetStats(ctx).FallbackScores, ShouldEqual, 0)
			})
		})

		Convey("When the envelope is invalid", func() {
			err := svc.Ingest(ctx, model.Envelope{Event: event(model.EventBlur, 1)})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When the external scorer goes away", func() {
			srv.Close()
			So(svc.Ingest(ctx, model.Envelope{SessionID: s.ID, Event: event(model.EventTabSwitch, 1)}), ShouldBeNil)
			got := waitForEvents(ctx, svc, s.ID, 1)

			Convey("Then the fallback heuristic scores the event", func() {
				So(got.RiskScore, ShouldEqual, 13)
				So(svc.GetStats(ctx).FallbackScores, ShouldEqual, 1)
			})
		})
	})
}

func TestServiceIntegration_Serialization(t *testing.T) {
	Convey("Given a session updated from many goroutines", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithScorer(incrementScorer{}))
		s := openSession(ctx, svc, activeAssessment(ctx, svc).ID)

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					_ = svc.RecordEvent(ctx, s.ID, event(model.EventFocus, int64(g*10+i+1)))
				}
			}(g)
		}
		wg.Wait()

		Convey("Then no score update is lost", func() {
			got, _ := svc.GetSession(ctx, s.ID)
			So(got.BehavioralData, ShouldHaveLength, 80)
			So(got.RiskScore, ShouldEqual, 80)
		})
	})

	Convey("Given sessions ending while events arrive", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithScorer(incrementScorer{}))
		s := openSession(ctx, svc, activeAssessment(ctx, svc).ID)

		var wg sync.WaitGroup
		var mu sync.Mutex
		accepted := 0
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					if svc.RecordEvent(ctx, s.ID, event(model.EventFocus, int64(i+1))) == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}
			}()
		}
		_, endErr := svc.EndSession(ctx, s.ID, time.Time{})
		wg.Wait()

		Convey("Then the history holds exactly the accepted events", func() {
			So(endErr, ShouldBeNil)
			got, _ := svc.GetSession(ctx, s.ID)
			So(got.BehavioralData, ShouldHaveLength, accepted)
			So(got.RiskScore, ShouldEqual, accepted)
		})
	})
}

func TestServiceIntegration_Backpressure(t *testing.T) {
	Convey("Given a single worker with room for one queued event", t, func() {
		ctx := context.Background()
		gate := &gateScorer{entered: make(chan struct{}, 8), release: make(chan struct{})}
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithScorer(gate),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		var once sync.Once
		release := func() { once.Do(func() { close(gate.release) }) }
		defer release()

		s := openSession(ctx, svc, activeAssessment(ctx, svc).ID)
		envelope := func(id string, ts int64) model.Envelope {
			return model.Envelope{SessionID: s.ID, EventID: id, Event: event(model.EventBlur, ts)}
		}

		So(svc.Ingest(ctx, envelope("a", 1)), ShouldBeNil)
		<-gate.entered
		So(svc.Ingest(ctx, envelope("b", 2)), ShouldBeNil)

		Convey("When the partition is full", func() {
			err := svc.Ingest(ctx, envelope("c", 3))

			Convey("Then ingest reports backpressure", func() {
				So(errors.Is(err, model.ErrBackpressure), ShouldBeTrue)
			})

			Convey("And the rejected event id can be resent later", func() {
				release()
				waitForEvents(ctx, svc, s.ID, 2)
				So(svc.Ingest(ctx, envelope("c", 3)), ShouldBeNil)
				got := waitForEvents(ctx, svc, s.ID, 3)
				So(got.BehavioralData, ShouldHaveLength, 3)
			})
		})
	})
}

func TestServiceIntegration_Shutdown(t *testing.T) {
	Convey("Given a service whose start context is already cancelled", t, func() {
		bg := context.Background()
		runCtx, cancel := context.WithCancel(bg)
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(64),
			service.WithScorer(incrementScorer{}),
		)
		So(svc.Start(runCtx), ShouldBeNil)
		cancel()

		a := activeAssessment(bg, svc)
		first := openSession(bg, svc, a.ID)
		second := openSession(bg, svc, a.ID)
		for i := 0; i < 25; i++ {
			for _, id := range []int64{first.ID, second.ID} {
				env := model.Envelope{SessionID: id, EventID: fmt.Sprintf("e%d", i), Event: event(model.EventFocus, int64(i+1))}
				So(svc.Ingest(bg, env), ShouldBeNil)
			}
		}

		Convey("When the service is stopped", func() {
			svc.Stop()

			Convey("Then every accepted event is recorded in order", func() {
				for _, id := range []int64{first.ID, second.ID} {
					got, err := svc.GetSession(bg, id)
					So(err, ShouldBeNil)
					So(got.BehavioralData, ShouldHaveLength, 25)
					So(got.RiskScore, ShouldEqual, 25)
					for i, e := range got.BehavioralData {
						So(e.Timestamp, ShouldEqual, int64(i+1))
					}
				}
			})

			Convey("And later telemetry is refused as unavailable", func() {
				err := svc.Ingest(bg, model.Envelope{SessionID: first.ID, Event: event(model.EventBlur, 99)})
				So(errors.Is(err, model.ErrUnavailable), ShouldBeTrue)
			})
		})
	})
}
