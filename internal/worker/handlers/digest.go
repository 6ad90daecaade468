package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/kinloop/kinloop/internal/insight"
	"github.com/kinloop/kinloop/internal/metrics"
	"github.com/kinloop/kinloop/internal/queue"
	"github.com/kinloop/kinloop/internal/repository"
	"github.com/kinloop/kinloop/internal/stats"
	"github.com/kinloop/kinloop/internal/timewindow"
)

type DigestPayload struct {
	FamilyID string `json:"family_id"`
	To       string `json:"to"`
}

type DigestSender struct {
	repo repository.FamilyRepository
	now  func() time.Time
}

func NewDigestSender(repo repository.FamilyRepository) *DigestSender {
	return &DigestSender{repo: repo, now: time.Now}
}

// SendDigestHandler emails the family's weekly summary. It requires a stored
// insight for the current week; computing one is the compute_insight job's
// responsibility, so a missing record fails the job and the retry picks it up
// after the insight lands.
func (ds *DigestSender) SendDigestHandler(ctx context.Context, job *queue.Job) error {
	familyID, ok := job.Payload["family_id"].(string)
	if !ok || familyID == "" {
		return errors.New("missing 'family_id' field")
	}

	to, ok := job.Payload["to"].(string)
	if !ok || to == "" {
		return errors.New("missing 'to' field")
	}

	now := ds.now()
	rec, err := ds.repo.GetInsight(ctx, familyID, repository.ScopeFamily, timewindow.StartOfWeek(now))
	if err != nil {
		return fmt.Errorf("failed to load insight: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no insight stored for family %s this week", familyID)
	}

	activity, err := ds.repo.GetFamilyActivity(ctx, familyID)
	if err != nil {
		return fmt.Errorf("failed to load family activity: %w", err)
	}

	pair := timewindow.Resolve(timewindow.ThisWeek, nil, now)
	snap := stats.Aggregate(stats.Input{
		Tasks:              activity.Tasks,
		Events:             activity.Events,
		Redemptions:        activity.Redemptions,
		Children:           activity.Children,
		OutcomeLinks:       activity.OutcomeLinks,
		ActiveOutcomeCount: activity.ActiveOutcomeCount,
	}, pair, now)

	subject, body := renderDigest(snap, rec.Insight)
	if insight.NeedsSanitization(body) {
		log.Printf("[Job %s] Digest body contains an unresolved identifier, sending boilerplate", job.ID)
		metrics.RecordSanitizerLeak()
		safe := &stats.Snapshot{Window: snap.Window, Current: snap.Current, Previous: snap.Previous}
		subject, body = renderDigest(safe, insight.Generic())
	}

	if err := sendDigestEmail(to, subject, body); err != nil {
		return err
	}

	log.Printf("Digest sent to %s", to)
	return nil
}

// sendDigestEmail is a package variable so tests can intercept the send.
var sendDigestEmail = func(to, subject, body string) error {
	fromName := os.Getenv("FROM_NAME")
	fromAddress := os.Getenv("FROM_ADDRESS")
	from := mail.NewEmail(fromName, fromAddress)
	toEmail := mail.NewEmail("", to)
	email := mail.NewSingleEmail(from, subject, toEmail, body, body)
	client := sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY"))
	response, err := client.Send(email)
	if err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	return nil
}

func renderDigest(snap *stats.Snapshot, ins insight.Insight) (subject, body string) {
	subject = fmt.Sprintf("Your family's week: %s", ins.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "Week of %s\n\n", snap.Window.Current.Start.Format("January 2, 2006"))
	fmt.Fprintf(&b, "Tasks completed: %d (last week: %d)\n", snap.Current.CompletedCount, snap.Previous.CompletedCount)
	fmt.Fprintf(&b, "Minutes earned: %d (last week: %d)\n", snap.Current.MinutesEarned, snap.Previous.MinutesEarned)
	if snap.TopContributingChildName != "" {
		fmt.Fprintf(&b, "Top contributor: %s\n", snap.TopContributingChildName)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s\n%s\n%s\n\n", ins.Title, ins.Observation, ins.Diagnosis)
	fmt.Fprintf(&b, "Try this: %s\n", ins.Recommendation)
	fmt.Fprintf(&b, "Expected result: %s\n", ins.ExpectedResult)
	fmt.Fprintf(&b, "Check back: %s\n", ins.NextCheck)

	return subject, b.String()
}
