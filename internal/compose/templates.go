package compose

import (
	"fmt"
	"strings"

	"github.com/fixmyward/ward-service/internal/domain"
)

// Action names the situation a notification is written for.
type Action string

const (
	ActionNewReport     Action = "NEW_REPORT"
	ActionReportResult  Action = "REPORT_RESULT"
	ActionStatusChange  Action = "STATUS_CHANGE"
	ActionLoginAlert    Action = "LOGIN_ALERT"
	ActionPasswordReset Action = "PASSWORD_RESET"
)

// ParseAction normalises user input into an Action.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionNewReport, ActionReportResult, ActionStatusChange, ActionLoginAlert, ActionPasswordReset:
		return a, true
	}
	return "", false
}

// NotificationType maps an action to the notification classification it produces.
func (a Action) NotificationType() domain.NotificationType {
	switch a {
	case ActionNewReport:
		return domain.NotificationDispatched
	case ActionReportResult:
		return domain.NotificationReceived
	case ActionLoginAlert:
		return domain.NotificationSecurity
	case ActionPasswordReset:
		return domain.NotificationReset
	default:
		return domain.NotificationUpdate
	}
}

func (a Action) needsIssue() bool {
	return a == ActionNewReport || a == ActionReportResult || a == ActionStatusChange
}

// Input is the structured data a draft is written from.
type Input struct {
	Issue     *domain.Issue
	User      *domain.User
	ResetLink string
}

func subjectFor(a Action, in Input) string {
	switch a {
	case ActionLoginAlert:
		return fmt.Sprintf("[Security] New Login Detected for %s", in.User.Username)
	case ActionPasswordReset:
		return "Reset your Fix My Ward Password"
	case ActionNewReport:
		return fmt.Sprintf("[Official] New Infrastructure Report: %s", in.Issue.Title)
	case ActionReportResult:
		return fmt.Sprintf("Your Report Analysis: %s", in.Issue.Title)
	default:
		return fmt.Sprintf("Update on Report: %s", in.Issue.Title)
	}
}

func promptFor(a Action, in Input) string {
	switch a {
	case ActionLoginAlert:
		return fmt.Sprintf("Compose a short, professional security alert email for user %s (@%s). "+
			"Notify them that a login occurred on Fix My Ward from a new browser session. "+
			"If it wasn't them, they should contact support.", in.User.Name, in.User.Username)
	case ActionPasswordReset:
		return fmt.Sprintf("Compose a helpful password reset email for %s. Include this temporary secure link: %s. "+
			"Tell them the link expires in 15 minutes.", in.User.Name, in.ResetLink)
	case ActionNewReport:
		return fmt.Sprintf("Draft a professional email to a Ward Councillor.\nIssue: %s\nAnalysis: %s\nWard: %s\n"+
			"Reported by: %s\nAction required: Please review and assign a field team.",
			in.Issue.Title, analysisText(in.Issue), in.Issue.Ward, in.Issue.ReportedBy)
	case ActionReportResult:
		return fmt.Sprintf("Compose a \"Thank You\" receipt for citizen %s.\nConfirm their report %q was received.\n"+
			"Detail the AI Analysis: %q.\nExplain that their Ward Councillor has been notified and will provide updates.",
			in.Issue.ReportedBy, in.Issue.Title, analysisText(in.Issue))
	default:
		return fmt.Sprintf("Compose a polite update for %s.\nTheir report %q status is now: %s.\nWard: %s.",
			in.Issue.ReportedBy, in.Issue.Title, in.Issue.Status, in.Issue.Ward)
	}
}

// fallbackBody is used whenever the generator is unavailable.
func fallbackBody(a Action, in Input) string {
	switch a {
	case ActionLoginAlert:
		return fmt.Sprintf("Hello %s,\n\nA new login to your Fix My Ward account was detected. "+
			"If this wasn't you, please contact support.", displayName(in.User))
	case ActionPasswordReset:
		return fmt.Sprintf("Hello %s,\n\nUse this link to reset your password: %s\nThe link expires in 15 minutes.",
			displayName(in.User), in.ResetLink)
	case ActionNewReport:
		return fmt.Sprintf("A new %s report %q was filed in %s by %s. Please review and assign a field team.",
			in.Issue.Category, in.Issue.Title, in.Issue.Ward, in.Issue.ReportedBy)
	case ActionReportResult:
		return fmt.Sprintf("Hello %s,\n\nThank you. Your report %q has been received and your ward councillor has been notified.",
			in.Issue.ReportedBy, in.Issue.Title)
	default:
		return fmt.Sprintf("Hello %s,\n\nYour report %q in %s is now %s.",
			in.Issue.ReportedBy, in.Issue.Title, in.Issue.Ward, in.Issue.Status)
	}
}

func analysisText(issue *domain.Issue) string {
	if issue.AIAnalysis != nil && *issue.AIAnalysis != "" {
		return *issue.AIAnalysis
	}
	return "Not available"
}

func displayName(u *domain.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
