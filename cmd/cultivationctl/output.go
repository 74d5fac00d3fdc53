package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/udisondev/cultivation/internal/game/cultivation"
	"github.com/udisondev/cultivation/internal/model"
)

func printStatus(w io.Writer, st cultivation.ProgressionStatus) {
	fmt.Fprintf(w, "%s (#%d)  realm %s %s  exp %d/%d (%d%%)\n",
		st.Name, st.CharacterID, st.Realm, st.RealmName,
		st.Experience, st.RequiredExperience, st.ProgressPercent)
	fmt.Fprintf(w, "  hp %d  mp %d  atk %d  def %d\n",
		st.Stats.HP, st.Stats.MP, st.Stats.Attack, st.Stats.Defense)

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  GATE\tAT\tRATE\tITEMS\tDEATH\tSTATE")
	for _, g := range st.Gates {
		rate := "item-gated"
		if g.SuccessRate != nil {
			rate = fmt.Sprintf("%.0f%%", *g.SuccessRate*100)
		}
		state := "ready"
		if !g.CanAttempt {
			state = g.Reason
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			g.GateID, g.Required, rate, yesNo(g.HasRequiredItems), yesNo(g.DeathOnFailure), state)
	}
	tw.Flush()
}

func printBreakthrough(w io.Writer, res cultivation.BreakthroughResult) {
	switch {
	case res.Died:
		fmt.Fprintf(w, "died at %s after %d breakthrough(s)\n", res.FinalRealm, res.Advanced)
	case res.BlockedByGate != "":
		fmt.Fprintf(w, "%s -> %s (+%d), blocked by gate %s\n", res.From, res.FinalRealm, res.Advanced, res.BlockedByGate)
	default:
		fmt.Fprintf(w, "%s -> %s (+%d)\n", res.From, res.FinalRealm, res.Advanced)
	}
	for _, rec := range res.Records {
		fmt.Fprintf(w, "  record %s gate %s success=%t\n", rec.ID, rec.GateID, rec.Success)
	}
}

func printTribulation(w io.Writer, res cultivation.TribulationResult) {
	fmt.Fprintf(w, "%s: %s\n", res.Outcome, res.Message)
	if res.NewRealm != nil {
		fmt.Fprintf(w, "  new realm %s\n", *res.NewRealm)
	}
	if res.RecordID != nil {
		fmt.Fprintf(w, "  record %s\n", *res.RecordID)
	}
}

func printRollback(w io.Writer, res cultivation.RollbackResult) {
	fmt.Fprintf(w, "restored %s as character %d at %s with %d item stack(s) (record %s)\n",
		res.Name, res.NewCharacterID, res.Realm, res.RestoredItems, res.RecordID)
}

func printRecords(w io.Writer, recs []*model.TribulationRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no records")
		return
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tCHARACTER\tNAME\tGATE\tREALM\tROLL\tRESULT\tATTEMPTED")
	for _, r := range recs {
		roll := "-"
		if r.Roll != nil {
			roll = fmt.Sprintf("%.3f", *r.Roll)
		}
		name := r.CharacterName()
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CharacterID, name, r.GateID, r.OriginalRealm, roll, recordResult(r),
			r.AttemptedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

func recordResult(r *model.TribulationRecord) string {
	switch {
	case r.Success:
		return "passed"
	case r.RolledBack:
		by := ""
		if r.RolledBackBy != nil {
			by = " by " + *r.RolledBackBy
		}
		return "rolled back" + by
	case r.Snapshot != nil:
		return "died"
	default:
		return "failed"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
