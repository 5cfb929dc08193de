package matchup_test

import (
	"errors"
	"testing"

	matchup "github.com/halfcourt/matchfit/internal/domain/matchup"
	model "github.com/halfcourt/matchfit/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func sampleAssignments() []matchup.Assignment {
	return []matchup.Assignment{
		{Lineup: model.Lineup{0, 0, 1, 1, 2}, Supercluster: 0},
		{Lineup: model.Lineup{0, 1, 1, 2, 2}, Supercluster: 1},
		{Lineup: model.Lineup{1, 1, 1, 2, 2}, Supercluster: 1},
		{Lineup: model.Lineup{0, 0, 0, 1, 2}, Supercluster: 2},
	}
}

func TestNewTable(t *testing.T) {
	Convey("Given supercluster table construction", t, func() {
		Convey("When the table is valid", func() {
			c, err := matchup.NewTable(sampleAssignments(), 3)

			Convey("Then the classifier loads", func() {
				So(err, ShouldBeNil)
				So(c, ShouldNotBeNil)
				So(c.Superclusters(), ShouldEqual, 3)
			})
		})

		Convey("When S is not positive", func() {
			c, err := matchup.NewTable(sampleAssignments(), 0)

			Convey("Then construction fails", func() {
				So(c, ShouldBeNil)
				So(errors.Is(err, matchup.ErrSuperclusterCount), ShouldBeTrue)
			})
		})

		Convey("When a supercluster id is outside [0, S)", func() {
			bad := append(sampleAssignments(), matchup.Assignment{
				Lineup:       model.Lineup{2, 2, 2, 2, 2},
				Supercluster: 3,
			})

			c, err := matchup.NewTable(bad, 3)

			Convey("Then construction fails with the offending id", func() {
				So(c, ShouldBeNil)
				So(errors.Is(err, matchup.ErrSuperclusterRange), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "supercluster 3")
			})
		})

		Convey("When the same lineup maps to two clusters", func() {
			conflicted := append(sampleAssignments(), matchup.Assignment{
				Lineup:       model.Lineup{0, 0, 1, 1, 2},
				Supercluster: 2,
			})

			c, err := matchup.NewTable(conflicted, 3)

			Convey("Then construction fails", func() {
				So(c, ShouldBeNil)
				So(errors.Is(err, matchup.ErrConflictingAssignment), ShouldBeTrue)
			})
		})

		Convey("When the same assignment appears twice verbatim", func() {
			doubled := append(sampleAssignments(), sampleAssignments()[0])

			c, err := matchup.NewTable(doubled, 3)

			Convey("Then the duplicate is tolerated", func() {
				So(err, ShouldBeNil)
				So(c, ShouldNotBeNil)
			})
		})

		Convey("When archetype space checking is enabled", func() {
			outOfSpace := append(sampleAssignments(), matchup.Assignment{
				Lineup:       model.Lineup{0, 1, 2, 3, 7},
				Supercluster: 0,
			})

			c, err := matchup.NewTable(outOfSpace, 3, matchup.WithArchetypeSpace(3))

			Convey("Then lineups outside [0, K) are fatal", func() {
				So(c, ShouldBeNil)
				So(errors.Is(err, matchup.ErrLineupArchetype), ShouldBeTrue)
			})
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Given a loaded classifier", t, func() {
		c, err := matchup.NewTable(sampleAssignments(), 3)
		So(err, ShouldBeNil)

		Convey("When both lineups are assigned", func() {
			pair, ok := c.Classify(model.Lineup{0, 0, 1, 1, 2}, model.Lineup{0, 1, 1, 2, 2})

			Convey("Then the pair comes back", func() {
				So(ok, ShouldBeTrue)
				So(pair.Off, ShouldEqual, matchup.SuperclusterID(0))
				So(pair.Def, ShouldEqual, matchup.SuperclusterID(1))
			})
		})

		Convey("When the offensive lineup is unassigned", func() {
			_, ok := c.Classify(model.Lineup{2, 2, 2, 2, 2}, model.Lineup{0, 0, 1, 1, 2})

			Convey("Then classification reports absence without error", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the defensive lineup is unassigned", func() {
			_, ok := c.Classify(model.Lineup{0, 0, 1, 1, 2}, model.Lineup{2, 2, 2, 2, 2})

			So(ok, ShouldBeFalse)
		})

		Convey("When classification is repeated", func() {
			off := model.Lineup{0, 0, 0, 1, 2}
			def := model.Lineup{1, 1, 1, 2, 2}

			a, okA := c.Classify(off, def)
			b, okB := c.Classify(off, def)

			Convey("Then it is deterministic", func() {
				So(okA, ShouldBeTrue)
				So(okB, ShouldBeTrue)
				So(a, ShouldResemble, b)
			})
		})
	})
}

func TestPairIndex(t *testing.T) {
	Convey("Given matchup index flattening", t, func() {
		s := 3

		Convey("When flattening every pair", func() {
			seen := make(map[int]bool)
			for off := 0; off < s; off++ {
				for def := 0; def < s; def++ {
					p := matchup.Pair{Off: matchup.SuperclusterID(off), Def: matchup.SuperclusterID(def)}
					idx := p.Index(s)

					So(idx, ShouldBeGreaterThanOrEqualTo, 0)
					So(idx, ShouldBeLessThan, s*s)
					seen[idx] = true
				}
			}

			Convey("Then the indexes cover [0, S*S) without collision", func() {
				So(len(seen), ShouldEqual, s*s)
			})
		})

		Convey("When off and def are swapped", func() {
			ab := matchup.Pair{Off: 1, Def: 2}.Index(s)
			ba := matchup.Pair{Off: 2, Def: 1}.Index(s)

			Convey("Then the indexes differ", func() {
				So(ab, ShouldNotEqual, ba)
			})
		})
	})
}
