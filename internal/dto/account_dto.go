package dto

type AccountSettingsRequest struct {
	SMTPHost         *string `json:"smtp_host" validate:"omitempty,hostname_rfc1123|ip"`
	SMTPPort         *int    `json:"smtp_port" validate:"omitempty,min=1,max=65535"`
	SMTPUser         *string `json:"smtp_user" validate:"omitempty,max=255"`
	SMTPPassword     *string `json:"smtp_password" validate:"omitempty,max=255"`
	EmailFromName    *string `json:"email_from_name" validate:"omitempty,max=255"`
	EmailFromAddress *string `json:"email_from_address" validate:"omitempty,email"`
	MailerEncryption *string `json:"mailer_encryption" validate:"omitempty,oneof=ssl tls starttls none"`
}

type AccountSettingsResponse struct {
	SMTPHost         *string `json:"smtp_host"`
	SMTPPort         *int    `json:"smtp_port"`
	SMTPUser         *string `json:"smtp_user"`
	HasSMTPPassword  bool    `json:"has_smtp_password"`
	EmailFromName    *string `json:"email_from_name"`
	EmailFromAddress *string `json:"email_from_address"`
	MailerEncryption *string `json:"mailer_encryption"`
	Mode             string  `json:"mode"`
}
