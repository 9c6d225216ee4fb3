package notification

// SendSubmissionNotificationType is the queue type of SendSubmissionNotification.
const SendSubmissionNotificationType = "submission.send_notification"

// SendSubmissionNotification asks the worker to notify every enabled channel
// of a form about one submission. It carries only the ID; everything else is
// read at dispatch time.
type SendSubmissionNotification struct {
	SubmissionID uint `json:"submissionId"`
}

func (SendSubmissionNotification) CommandType() string {
	return SendSubmissionNotificationType
}
