package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/uuid/v5"
	"github.com/olekukonko/tablewriter"

	"github.com/and161185/kennelsync/internal/dogmigration"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/syncengine"
)

func shortID(id uuid.UUID) string { return id.String()[:8] }

func ago(t, now time.Time) string { return humanize.RelTime(t, now, "ago", "from now") }

func visitStatus(d model.DogWithVisit, now time.Time) string {
	v := d.Visit
	switch {
	case v.IsDeleted:
		return "deleted"
	case v.DepartureAt != nil && !v.DepartureAt.After(now):
		return "left " + ago(*v.DepartureAt, now)
	case v.IsBoarding && v.BoardingEndAt != nil:
		return "boarding until " + v.BoardingEndAt.Local().Format("Mon Jan 2 15:04")
	case v.IsBoarding:
		return "boarding"
	}
	return "daycare"
}

func lastFed(v model.Visit, now time.Time) string {
	if len(v.Feedings) == 0 {
		return "-"
	}
	f := v.Feedings[len(v.Feedings)-1]
	return string(f.Type) + " " + ago(f.Timestamp, now)
}

// renderVisits prints entries as a table, latest arrival first.
func renderVisits(w io.Writer, entries []model.DogWithVisit, now time.Time) {
	entries = append([]model.DogWithVisit(nil), entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Visit.ArrivalAt.After(entries[j].Visit.ArrivalAt)
	})

	var table = tablewriter.NewWriter(w)
	table.SetHeader([]string{"Visit", "Dog", "Owner", "Arrived", "Status", "Last fed", "Potty", "Meds"})
	for _, d := range entries {
		table.Append([]string{
			shortID(d.ID()),
			d.DisplayName(),
			d.Owner(),
			ago(d.Visit.ArrivalAt, now),
			visitStatus(d, now),
			lastFed(d.Visit, now),
			strconv.Itoa(len(d.Visit.PottyRecords)),
			strconv.Itoa(len(d.Visit.MedicationRecords)),
		})
	}
	table.Render()
}

func renderReport(w io.Writer, rep syncengine.FetchReport) {
	switch rep.Kind {
	case syncengine.FetchIncremental, syncengine.FetchHistoryIncremental:
		fmt.Fprintf(w, "%s sync: %d changed record(s), %d visit(s)\n", rep.Kind, rep.Changed, rep.Count)
	default:
		fmt.Fprintf(w, "%s sync: %d visit(s), previously %d\n", rep.Kind, rep.Count, rep.Previous)
	}
	if rep.Anomaly {
		fmt.Fprintf(w, "warning: the store returned far fewer visits than before (%d -> %d); previously cached:\n",
			rep.Previous, rep.Count)
		for _, d := range rep.PreviousSnapshot {
			fmt.Fprintf(w, "  %s  %s (%s)\n", shortID(d.ID()), d.DisplayName(), d.Owner())
		}
	}
}

func renderMigration(w io.Writer, rep dogmigration.Report) {
	var table = tablewriter.NewWriter(w)
	table.SetHeader([]string{"Legacy", "Profiles created", "Profiles merged", "Visits created", "Visits skipped", "Care records"})
	table.Append([]string{
		strconv.Itoa(rep.Legacy),
		strconv.Itoa(rep.ProfilesCreated),
		strconv.Itoa(rep.ProfilesMerged),
		strconv.Itoa(rep.VisitsCreated),
		strconv.Itoa(rep.VisitsSkipped),
		strconv.Itoa(rep.Records),
	})
	table.Render()
}
