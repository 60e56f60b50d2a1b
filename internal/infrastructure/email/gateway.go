// Package email implements the notification gateway over SMTP. Every send
// is best-effort and bounded by a timeout; a failed or slow send never
// propagates into the state transition that triggered it.
package email

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
)

// Config holds SMTP and addressing configuration.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	SenderName  string
	AdminEmails []string
	SendTimeout time.Duration
}

// Gateway sends trip lifecycle emails.
type Gateway struct {
	dialer *gomail.Dialer
	cfg    Config
	logger *zap.Logger
}

// NewGateway creates a new SMTP notification gateway.
func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Gateway{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		cfg:    cfg,
		logger: logger,
	}
}

// SendApprovalRequest mails the manager a routine approval request with the
// one-click decision links.
func (g *Gateway) SendApprovalRequest(ctx context.Context, trip *entity.Trip, links port.ApprovalLinks) error {
	subject := fmt.Sprintf("Trip approval requested: %s to %s", trip.Departure, trip.Destination)
	body := approvalBody(trip, links, false)
	return g.send(ctx, []string{trip.ManagerEmail}, nil, subject, body)
}

// SendUrgentApprovalRequest mails the manager and all admins an expedited
// approval request for a trip departing inside the urgency window.
func (g *Gateway) SendUrgentApprovalRequest(ctx context.Context, trip *entity.Trip, links port.ApprovalLinks) error {
	subject := fmt.Sprintf("[URGENT] Trip approval requested: %s to %s", trip.Departure, trip.Destination)
	body := approvalBody(trip, links, true)
	return g.send(ctx, []string{trip.ManagerEmail}, g.cfg.AdminEmails, subject, body)
}

// SendDecisionConfirmation tells the requester how their trip was decided.
func (g *Gateway) SendDecisionConfirmation(ctx context.Context, trip *entity.Trip) error {
	verdict := "approved"
	if trip.ApprovalStatus == entity.ApprovalRejected {
		verdict = "rejected"
	}
	subject := fmt.Sprintf("Your trip to %s was %s", trip.Destination, verdict)
	body := fmt.Sprintf(`
		<p>Hello %s,</p>
		<p>Your business trip from <b>%s</b> to <b>%s</b> departing %s has been <b>%s</b> by %s.</p>
	`, trip.RequesterName, trip.Departure, trip.Destination,
		trip.DepartureTime.Format("2006-01-02 15:04"), verdict, trip.DecisionActor)
	return g.send(ctx, []string{trip.RequesterEmail}, trip.CCEmails, subject, body)
}

// SendExpiryEscalation tells the requester and admins that the approval
// window lapsed and a manual override is needed.
func (g *Gateway) SendExpiryEscalation(ctx context.Context, trip *entity.Trip) error {
	subject := fmt.Sprintf("Trip approval expired: %s to %s", trip.Departure, trip.Destination)
	body := fmt.Sprintf(`
		<p>The approval window for the business trip from <b>%s</b> to <b>%s</b>
		departing %s has expired without a manager decision.</p>
		<p>An administrator can settle the request with a manual override.</p>
	`, trip.Departure, trip.Destination, trip.DepartureTime.Format("2006-01-02 15:04"))
	return g.send(ctx, []string{trip.RequesterEmail}, g.cfg.AdminEmails, subject, body)
}

// SendOptimizationNotice tells an affected employee about the combined
// dispatch their trip was folded into.
func (g *Gateway) SendOptimizationNotice(ctx context.Context, trip *entity.Trip, group *entity.OptimizationGroup) error {
	subject := fmt.Sprintf("Trip schedule updated: %s to %s", trip.Departure, trip.Destination)
	original := ""
	if trip.OriginalDepartureTime != nil {
		original = trip.OriginalDepartureTime.Format("15:04")
	}
	body := fmt.Sprintf(`
		<p>Hello %s,</p>
		<p>Your trip to <b>%s</b> has been combined with colleagues' trips to
		share one %s.</p>
		<p>New departure time: <b>%s</b> (was %s).</p>
	`, trip.RequesterName, trip.Destination, vehicleLabel(group.VehicleType),
		group.ProposedDepartureTime.Format("2006-01-02 15:04"), original)
	return g.send(ctx, []string{trip.RequesterEmail}, trip.CCEmails, subject, body)
}

func approvalBody(trip *entity.Trip, links port.ApprovalLinks, urgent bool) string {
	banner := ""
	if urgent {
		banner = fmt.Sprintf("<p><b>This trip departs in less than a day (%s). Please decide promptly.</b></p>",
			trip.DepartureTime.Format("2006-01-02 15:04"))
	}
	return fmt.Sprintf(`
		%s
		<p><b>%s</b> requests a business trip:</p>
		<ul>
			<li>Route: %s &rarr; %s</li>
			<li>Departure: %s</li>
			<li>Return: %s</li>
			<li>Passengers: %d</li>
			<li>Estimated cost: %.0f</li>
		</ul>
		<p>
			<a href="%s">Approve</a> &nbsp;|&nbsp; <a href="%s">Reject</a>
		</p>
		<p>The links are valid for a limited time.</p>
	`, banner, trip.RequesterName, trip.Departure, trip.Destination,
		trip.DepartureTime.Format("2006-01-02 15:04"),
		trip.ReturnTime.Format("2006-01-02 15:04"),
		trip.PassengerCount, trip.EstimatedCost,
		links.ApproveURL, links.RejectURL)
}

func vehicleLabel(v entity.VehicleType) string {
	switch v {
	case entity.VehicleSmallCar:
		return "small car"
	case entity.VehicleLargeCar:
		return "large car"
	case entity.VehicleVan:
		return "van"
	default:
		return "vehicle"
	}
}

// send delivers one message within the configured timeout. DialAndSend has no
// context support, so it runs in a goroutine raced against the deadline.
func (g *Gateway) send(ctx context.Context, to, cc []string, subject, htmlBody string) error {
	if len(to) == 0 || to[0] == "" {
		return fmt.Errorf("send email: no recipient")
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", g.cfg.From, g.cfg.SenderName)
	m.SetHeader("To", to...)
	if len(cc) > 0 {
		m.SetHeader("Cc", cc...)
	}
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	ctx, cancel := context.WithTimeout(ctx, g.cfg.SendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			g.logger.Error("Email delivery failed",
				zap.Strings("to", to), zap.String("subject", subject), zap.Error(err))
			return fmt.Errorf("send email: %w", err)
		}
		g.logger.Info("Email sent", zap.Strings("to", to), zap.String("subject", subject))
		return nil
	case <-ctx.Done():
		g.logger.Error("Email delivery timed out",
			zap.Strings("to", to), zap.String("subject", subject))
		return fmt.Errorf("send email: %w", ctx.Err())
	}
}

// Verify interface compliance
var _ port.NotificationGateway = (*Gateway)(nil)
