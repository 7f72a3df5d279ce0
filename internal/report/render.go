package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/scheduler"
)

const (
	tableHeader = "Date        Start  End    Type           Device\n"
	rule        = "===========================================================================\n"
	// pairIndent lines a paired device up under the Device column.
	pairIndent = "                                         "
)

// RenderBookings renders the accepted and rejected tables for one scheduling result.
// Members are listed in directory order; members missing from the directory follow
// in order of first appearance. The output depends only on the arguments.
func RenderBookings(algo scheduler.Algorithm, batch booking.Batch, res scheduler.Result, members []string) []byte {
	var buf bytes.Buffer
	order := memberOrder(batch, members)

	rejected := make([]int, 0, len(res.Rejected))
	for _, idx := range res.Rejected {
		if idx >= 0 && idx < len(batch) {
			rejected = append(rejected, idx)
		}
	}
	accepted := make([]int, 0, len(res.Accepted))
	for _, idx := range res.Accepted {
		if idx >= 0 && idx < len(batch) {
			accepted = append(accepted, idx)
		}
	}

	fmt.Fprintf(&buf, "\n*** ACCEPTED Bookings - %s ***\n", algo)
	writeSection(&buf, batch, accepted, order, "ACCEPTED")

	fmt.Fprintf(&buf, "\n*** REJECTED Bookings - %s ***\n", algo)
	writeSection(&buf, batch, rejected, order, "REJECTED")

	buf.WriteString("\n- End -\n")
	buf.WriteString(rule)
	return buf.Bytes()
}

func writeSection(buf *bytes.Buffer, batch booking.Batch, indices []int, members []string, label string) {
	for _, member := range members {
		var rows []int
		for _, idx := range indices {
			if batch[idx].Member == member {
				rows = append(rows, idx)
			}
		}
		if len(rows) == 0 {
			continue
		}

		fmt.Fprintf(buf, "\n%s has the following %s bookings:\n", member, label)
		buf.WriteString(tableHeader)
		buf.WriteString(rule)
		for _, idx := range rows {
			writeRow(buf, &batch[idx])
		}
	}
}

func writeRow(buf *bytes.Buffer, b *booking.Booking) {
	fmt.Fprintf(buf, "%s  %s  %s  %-14s", b.Date, b.Time, b.EndClock(), b.Type)
	pairs := booking.Logical(b.Essentials)
	if len(pairs) == 0 {
		buf.WriteString(" *\n")
		return
	}
	for _, p := range pairs {
		fmt.Fprintf(buf, " %s\n%s%s", p[0], pairIndent, p[1])
	}
	buf.WriteString("\n")
}

func memberOrder(batch booking.Batch, members []string) []string {
	order := append([]string(nil), members...)
	known := make(map[string]bool, len(members))
	for _, m := range members {
		known[m] = true
	}
	for _, b := range batch {
		if !known[b.Member] {
			known[b.Member] = true
			order = append(order, b.Member)
		}
	}
	return order
}

// Capacity describes the pool the summary measures utilization against.
type Capacity struct {
	Slots             int
	EssentialCapacity int
}

// deviceLabels maps report labels onto essential names, in report order.
var deviceLabels = [][2]string{
	{"Locker", "locker"},
	{"Battery", "battery"},
	{"Cable", "cable"},
	{"Umbrella", "umbrella"},
	{"Valet", "valetpark"},
	{"Inflation", "inflationservice"},
}

// RenderSummary renders the analysis section for one scheduling result.
func RenderSummary(algo scheduler.Algorithm, batch booking.Batch, res scheduler.Result, invalid int, capacity Capacity) []byte {
	var buf bytes.Buffer
	first, last, days := period(batch)

	buf.WriteString("\n*** Parking Booking Manager - Summary Report ***\n")
	fmt.Fprintf(&buf, "Test Period: %s to %s (%d days)\n", first, last, days)

	fmt.Fprintf(&buf, "\nPerformance:\nFor %s:\n", algo)
	fmt.Fprintf(&buf, "Total Number of Bookings Received: %d\n", len(batch))
	fmt.Fprintf(&buf, "Number of Bookings Assigned: %d\n", len(res.Accepted))
	fmt.Fprintf(&buf, "Number of Bookings Rejected: %d\n", len(batch)-len(res.Accepted))

	var slotHours float64
	used := make(map[string]float64, len(deviceLabels))
	for _, idx := range res.Accepted {
		if idx < 0 || idx >= len(batch) {
			continue
		}
		b := &batch[idx]
		if b.Type.NeedsSlot() {
			slotHours += b.Duration
		}
		for _, p := range booking.Logical(b.Essentials) {
			name, _ := booking.Canonical(p[0])
			used[name] += b.Duration
			used[p[1]] += b.Duration
		}
	}

	hours := float64(days * 24)
	fmt.Fprintf(&buf, "Utilization of Time Slot: %.1f%%\n", percent(slotHours, hours*float64(capacity.Slots)))

	buf.WriteString("\nResource Utilization:\n")
	for _, d := range deviceLabels {
		fmt.Fprintf(&buf, "%s - %.1f%%\n", d[0], percent(used[d[1]], hours*float64(capacity.EssentialCapacity)))
	}

	fmt.Fprintf(&buf, "\nInvalid request(s) made: %d\n", invalid)
	return buf.Bytes()
}

// period returns the earliest and latest booking dates and the inclusive day count.
func period(batch booking.Batch) (string, string, int) {
	if len(batch) == 0 {
		return "-", "-", 0
	}
	first, last := batch[0].Date, batch[0].Date
	for _, b := range batch[1:] {
		if strings.Compare(b.Date, first) < 0 {
			first = b.Date
		}
		if strings.Compare(b.Date, last) > 0 {
			last = b.Date
		}
	}
	from, errFrom := time.Parse("2006-01-02", first)
	to, errTo := time.Parse("2006-01-02", last)
	if errFrom != nil || errTo != nil {
		return first, last, 1
	}
	return first, last, int(to.Sub(from).Hours()/24) + 1
}

func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}
