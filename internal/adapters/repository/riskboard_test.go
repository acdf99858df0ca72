package repository_test

import (
	"context"
	"errors"
	"testing"

	repository "github.com/okian/proctor/internal/adapters/repository"
	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRiskBoard(t *testing.T) {
	Convey("Given a risk board", t, func() {
		ctx := context.Background()
		b := repository.NewRiskBoard()

		Convey("When it is empty", func() {
			top, err := b.TopN(ctx, 5)
			So(err, ShouldBeNil)
			So(top, ShouldBeEmpty)
			So(b.Count(ctx), ShouldEqual, 0)

			_, err = b.Rank(ctx, 1)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When sessions are scored", func() {
			b.Set(ctx, types.RiskEntry{SessionID: 1, UserID: 100, RiskScore: 19})
			b.Set(ctx, types.RiskEntry{SessionID: 2, UserID: 200, RiskScore: 80})
			b.Set(ctx, types.RiskEntry{SessionID: 3, UserID: 300, RiskScore: 19})
			b.Set(ctx, types.RiskEntry{SessionID: 4, UserID: 400, RiskScore: 5})

			Convey("Then TopN orders by score desc then id asc", func() {
				top, err := b.TopN(ctx, 10)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 4)
				ids := []int64{top[0].SessionID, top[1].SessionID, top[2].SessionID, top[3].SessionID}
				So(ids, ShouldResemble, []int64{2, 1, 3, 4})
				So(top[0].UserID, ShouldEqual, 200)
			})

			Convey("And ties share a rank", func() {
				top, _ := b.TopN(ctx, 4)
				ranks := []int{top[0].Rank, top[1].Rank, top[2].Rank, top[3].Rank}
				So(ranks, ShouldResemble, []int{1, 2, 2, 4})

				e, err := b.Rank(ctx, 3)
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 2)
			})

			Convey("And TopN honors the limit", func() {
				top, _ := b.TopN(ctx, 2)
				So(top, ShouldHaveLength, 2)
			})

			Convey("And a moved session is re-ranked", func() {
				b.Set(ctx, types.RiskEntry{SessionID: 4, UserID: 400, RiskScore: 100, Ended: true})
				e, err := b.Rank(ctx, 4)
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 1)
				So(e.Ended, ShouldBeTrue)
				So(b.Count(ctx), ShouldEqual, 4)
			})
		})

		Convey("When the limit is invalid", func() {
			_, err := b.TopN(ctx, 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("When many sessions are set repeatedly", func() {
			for round := 0; round < 3; round++ {
				for id := int64(1); id <= 200; id++ {
					b.Set(ctx, types.RiskEntry{SessionID: id, RiskScore: int((id*7 + int64(round)*13) % 101)})
				}
			}

			Convey("Then the board stays consistent", func() {
				So(b.Count(ctx), ShouldEqual, 200)
				top, _ := b.TopN(ctx, 200)
				So(top, ShouldHaveLength, 200)
				for i := 1; i < len(top); i++ {
					So(top[i-1].RiskScore, ShouldBeGreaterThanOrEqualTo, top[i].RiskScore)
				}
			})
		})
	})
}
