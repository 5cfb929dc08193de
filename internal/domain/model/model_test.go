package model_test

import (
	"testing"

	model "github.com/halfcourt/matchfit/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestPossession(t *testing.T) {
	convey.Convey("Given a Possession struct", t, func() {
		convey.Convey("When creating a new possession", func() {
			p := model.Possession{
				GameID:       "0022300001",
				PossessionID: "0022300001-17",
				Offense:      [model.LineupSize]string{"p1", "p2", "p3", "p4", "p5"},
				Defense:      [model.LineupSize]string{"d1", "d2", "d3", "d4", "d5"},
				Outcome:      2,
			}

			convey.Convey("Then it should have the correct values", func() {
				convey.So(p.GameID, convey.ShouldEqual, "0022300001")
				convey.So(p.PossessionID, convey.ShouldEqual, "0022300001-17")
				convey.So(p.Offense[0], convey.ShouldEqual, "p1")
				convey.So(p.Defense[4], convey.ShouldEqual, "d5")
				convey.So(p.Outcome, convey.ShouldEqual, 2.0)
			})
		})

		convey.Convey("When creating a possession with zero values", func() {
			p := model.Possession{}

			convey.Convey("Then it should have default values", func() {
				convey.So(p.GameID, convey.ShouldEqual, "")
				convey.So(p.Outcome, convey.ShouldEqual, 0.0)
				convey.So(p.Offense[0], convey.ShouldEqual, "")
			})
		})

		convey.Convey("When the offense comes up empty", func() {
			p := model.Possession{Outcome: 0}

			convey.Convey("Then zero outcomes are legitimate", func() {
				convey.So(p.Outcome, convey.ShouldEqual, 0.0)
			})
		})

		convey.Convey("When a turnover produces negative value downstream", func() {
			p := model.Possession{Outcome: -1.2}

			convey.Convey("Then negative outcomes are accepted", func() {
				convey.So(p.Outcome, convey.ShouldEqual, -1.2)
			})
		})
	})
}

func TestLineup(t *testing.T) {
	convey.Convey("Given lineup construction", t, func() {
		convey.Convey("When building a lineup from unsorted archetype ids", func() {
			l := model.NewLineup([model.LineupSize]model.ArchetypeID{4, 0, 2, 1, 2})

			convey.Convey("Then the ids are sorted ascending", func() {
				convey.So(l, convey.ShouldResemble, model.Lineup{0, 1, 2, 2, 4})
			})
		})

		convey.Convey("When building lineups that are permutations of each other", func() {
			a := model.NewLineup([model.LineupSize]model.ArchetypeID{3, 1, 4, 1, 5})
			b := model.NewLineup([model.LineupSize]model.ArchetypeID{1, 5, 3, 4, 1})

			convey.Convey("Then they are identical", func() {
				convey.So(a, convey.ShouldResemble, b)
			})
		})

		convey.Convey("When all five players share one archetype", func() {
			l := model.NewLineup([model.LineupSize]model.ArchetypeID{2, 2, 2, 2, 2})

			convey.Convey("Then the multiset keeps its multiplicity", func() {
				convey.So(l, convey.ShouldResemble, model.Lineup{2, 2, 2, 2, 2})
			})
		})
	})
}

func TestDataset(t *testing.T) {
	convey.Convey("Given an assembled dataset", t, func() {
		ds := &model.Dataset{
			Rows: []model.FeatureRow{
				{Matchup: 0, Outcome: 1},
				{Matchup: 3, Outcome: 0},
				{Matchup: 3, Outcome: 2},
				{Matchup: model.UnassignedMatchup, Outcome: 1},
				{Matchup: 1, Outcome: 3},
			},
			Archetypes:    4,
			Superclusters: 2,
			TotalRead:     7,
			Rejected: map[model.RejectReason]int{
				model.RejectUnknownPlayer:    1,
				model.RejectNonFiniteOutcome: 1,
			},
		}

		convey.Convey("Then matchup space size follows S", func() {
			convey.So(ds.Matchups(), convey.ShouldEqual, 4)
		})

		convey.Convey("Then assigned and unassigned rows partition the dataset", func() {
			convey.So(ds.AssignedRows(), convey.ShouldEqual, 4)
			convey.So(ds.UnassignedRows(), convey.ShouldEqual, 1)
			convey.So(ds.AssignedRows()+ds.UnassignedRows(), convey.ShouldEqual, len(ds.Rows))
		})

		convey.Convey("Then matchup counts tally only assigned rows", func() {
			counts := ds.MatchupCounts()

			convey.So(counts, convey.ShouldHaveLength, 4)
			convey.So(counts[0], convey.ShouldEqual, 1)
			convey.So(counts[1], convey.ShouldEqual, 1)
			convey.So(counts[2], convey.ShouldEqual, 0)
			convey.So(counts[3], convey.ShouldEqual, 2)
		})

		convey.Convey("Then rejected totals sum across reasons", func() {
			convey.So(ds.RejectedTotal(), convey.ShouldEqual, 2)
		})

		convey.Convey("When no rows were rejected", func() {
			empty := &model.Dataset{Superclusters: 1}

			convey.So(empty.RejectedTotal(), convey.ShouldEqual, 0)
			convey.So(empty.MatchupCounts(), convey.ShouldHaveLength, 1)
		})
	})
}
