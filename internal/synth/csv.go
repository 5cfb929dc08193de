// Package synth generates possession logs from a known ground truth.
package synth

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/halfcourt/matchfit/internal/adapters/repository"
)

// Output file names inside the dataset directory.
const (
	PossessionsFile   = "possessions.csv"
	ArchetypesFile    = "archetypes.csv"
	SuperclustersFile = "superclusters.csv"
	TruthFile         = "truth.json"
)

// WriteFiles writes the three input tables plus truth.json into dir, in the
// exact format the CSV loader reads back.
func (o *Output) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir %s: %w", dir, err)
	}

	possessions := make([][]string, 0, len(o.Possessions))
	for i := range o.Possessions {
		p := &o.Possessions[i]
		rec := make([]string, 0, len(repository.PossessionColumns))
		rec = append(rec, p.GameID, p.PossessionID)
		rec = append(rec, p.Offense[:]...)
		rec = append(rec, p.Defense[:]...)
		rec = append(rec, strconv.FormatFloat(p.Outcome, 'g', -1, 64))
		possessions = append(possessions, rec)
	}
	if err := writeCSV(filepath.Join(dir, PossessionsFile), repository.PossessionColumns, possessions); err != nil {
		return err
	}

	archetypes := make([][]string, 0, len(o.Archetypes))
	for i := range o.Archetypes {
		e := &o.Archetypes[i]
		archetypes = append(archetypes, []string{
			e.PlayerID,
			e.Season,
			strconv.Itoa(int(e.Archetype)),
			strconv.FormatFloat(e.OffSkill, 'g', -1, 64),
			strconv.FormatFloat(e.DefSkill, 'g', -1, 64),
		})
	}
	if err := writeCSV(filepath.Join(dir, ArchetypesFile), repository.ArchetypeColumns, archetypes); err != nil {
		return err
	}

	superclusters := make([][]string, 0, len(o.Assignments))
	for i := range o.Assignments {
		a := &o.Assignments[i]
		superclusters = append(superclusters, []string{
			repository.LineupKey(a.Lineup),
			strconv.Itoa(int(a.Supercluster)),
		})
	}
	if err := writeCSV(filepath.Join(dir, SuperclustersFile), repository.SuperclusterColumns, superclusters); err != nil {
		return err
	}

	truth, err := json.MarshalIndent(o.Truth, "", "  ")
	if err != nil {
		return fmt.Errorf("encode truth: %w", err)
	}
	truthPath := filepath.Join(dir, TruthFile)
	if err := os.WriteFile(truthPath, truth, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", truthPath, err)
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, rec := range rows {
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
