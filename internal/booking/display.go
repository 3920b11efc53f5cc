package booking

// Color is the presentation category used when rendering a status badge.
type Color string

const (
	ColorWarning Color = "warning"
	ColorInfo    Color = "info"
	ColorSuccess Color = "success"
	ColorDanger  Color = "danger"
	ColorNeutral Color = "neutral"
)

// Label returns the human readable status name shown in tables and badges.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusWaitingForApproval:
		return "Waiting for approval"
	case StatusConfirmed:
		return "Confirmed"
	case StatusRejected:
		return "Rejected"
	case StatusCancelled:
		return "Cancelled"
	case StatusCompleted:
		return "Completed"
	case StatusExpired:
		return "Expired"
	case StatusNoShow:
		return "No-show"
	default:
		return "Unknown"
	}
}

func (s Status) Color() Color {
	switch s {
	case StatusPending, StatusWaitingForApproval:
		return ColorWarning
	case StatusConfirmed:
		return ColorInfo
	case StatusCompleted:
		return ColorSuccess
	case StatusRejected, StatusCancelled, StatusNoShow:
		return ColorDanger
	default:
		return ColorNeutral
	}
}
