package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repository "github.com/okian/proctor/internal/adapters/repository"
	"github.com/okian/proctor/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemorySessionStore(t *testing.T) {
	Convey("Given an empty session store", t, func() {
		ctx := context.Background()
		store := repository.NewMemorySessionStore()
		start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

		Convey("When creating sessions", func() {
			a, errA := store.Create(ctx, model.Session{UserID: 7, AssessmentID: 1, StartTime: start, ConsentGiven: true})
			b, errB := store.Create(ctx, model.Session{UserID: 8, AssessmentID: 1, StartTime: start, ConsentGiven: true})

			Convey("Then ids auto-increment from 1", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a.ID, ShouldEqual, 1)
				So(b.ID, ShouldEqual, 2)
			})

			Convey("And the stored record can be read back", func() {
				got, err := store.Get(ctx, a.ID)
				So(err, ShouldBeNil)
				So(got.UserID, ShouldEqual, 7)
				So(got.StartTime.Equal(start), ShouldBeTrue)
				So(got.BehavioralData, ShouldBeEmpty)
			})
		})

		Convey("When reading or updating an unknown id", func() {
			_, getErr := store.Get(ctx, 99)
			_, updErr := store.Update(ctx, 99, model.SessionPatch{})
			_, _, appErr := store.AppendEvent(ctx, 99, model.BehavioralEvent{Type: model.EventBlur, Timestamp: 1})

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(getErr, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(getErr, model.ErrNotFound), ShouldBeTrue)
				So(errors.Is(updErr, model.ErrNotFound), ShouldBeTrue)
				So(errors.Is(appErr, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When appending events", func() {
			s, _ := store.Create(ctx, model.Session{ConsentGiven: true})
			kinds := []model.EventType{model.EventFocus, model.EventBlur, model.EventTabSwitch, model.EventMouseMove}
			var history []model.BehavioralEvent
			for i, k := range kinds {
				var err error
				history, _, err = store.AppendEvent(ctx, s.ID, model.BehavioralEvent{Type: k, Timestamp: int64(i + 1)})
				So(err, ShouldBeNil)
			}

			Convey("Then the history keeps arrival order", func() {
				So(history, ShouldHaveLength, 4)
				for i, k := range kinds {
					So(history[i].Type, ShouldEqual, k)
				}
			})

			Convey("And the returned history is a copy", func() {
				history[0].Type = model.EventBlur
				got, _ := store.Get(ctx, s.ID)
				So(got.BehavioralData[0].Type, ShouldEqual, model.EventFocus)
			})

			Convey("And the previous score is reported", func() {
				score := 40
				_, err := store.Update(ctx, s.ID, model.SessionPatch{RiskScore: &score})
				So(err, ShouldBeNil)
				_, prev, err := store.AppendEvent(ctx, s.ID, model.BehavioralEvent{Type: model.EventBlur, Timestamp: 9})
				So(err, ShouldBeNil)
				So(prev, ShouldEqual, 40)
			})
		})

		Convey("When patching a session", func() {
			s, _ := store.Create(ctx, model.Session{ConsentGiven: true})
			_, _, _ = store.AppendEvent(ctx, s.ID, model.BehavioralEvent{Type: model.EventBlur, Timestamp: 1})
			end := start.Add(time.Hour)
			got, err := store.Update(ctx, s.ID, model.SessionPatch{EndTime: &end})

			Convey("Then only the patched fields change", func() {
				So(err, ShouldBeNil)
				So(got.EndTime, ShouldNotBeNil)
				So(got.EndTime.Equal(end), ShouldBeTrue)
				So(got.BehavioralData, ShouldHaveLength, 1)
				So(got.RiskScore, ShouldEqual, 0)
			})

			Convey("And stats count it as ended", func() {
				total, active := store.Stats(ctx)
				So(total, ShouldEqual, 1)
				So(active, ShouldEqual, 0)
			})
		})

		Convey("When many goroutines append to one session", func() {
			s, _ := store.Create(ctx, model.Session{ConsentGiven: true})
			var wg sync.WaitGroup
			for g := 0; g < 10; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						_, _, _ = store.AppendEvent(ctx, s.ID, model.BehavioralEvent{Type: model.EventMouseMove, Timestamp: 1})
					}
				}()
			}
			wg.Wait()

			Convey("Then no append is lost", func() {
				got, _ := store.Get(ctx, s.ID)
				So(got.BehavioralData, ShouldHaveLength, 500)
			})
		})
	})
}

func TestMemoryAssessmentStore(t *testing.T) {
	Convey("Given an assessment store with two instructors", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryAssessmentStore()
		a, _ := store.Create(ctx, model.Assessment{Title: "Algebra", Duration: 60, InstructorID: 10})
		_, _ = store.Create(ctx, model.Assessment{Title: "Biology", Duration: 45, InstructorID: 11})
		c, _ := store.Create(ctx, model.Assessment{Title: "Calculus", Duration: 90, InstructorID: 10})

		Convey("When listing by instructor", func() {
			got, err := store.ListByInstructor(ctx, 10)

			Convey("Then only their assessments are returned in id order", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].ID, ShouldEqual, a.ID)
				So(got[1].ID, ShouldEqual, c.ID)
			})
		})

		Convey("When activating one assessment", func() {
			active := true
			title := "Calculus I"
			updated, err := store.Update(ctx, c.ID, model.AssessmentPatch{Active: &active, Title: &title})
			So(err, ShouldBeNil)
			So(updated.Title, ShouldEqual, "Calculus I")
			So(updated.Duration, ShouldEqual, 90)

			Convey("Then it is the only active assessment", func() {
				got, err := store.ListActive(ctx)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].ID, ShouldEqual, c.ID)
			})
		})

		Convey("When the id is unknown", func() {
			_, err := store.Get(ctx, 42)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			_, err = store.Update(ctx, 42, model.AssessmentPatch{})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}
