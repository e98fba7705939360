package service

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Mailer is the outbound-email surface the relationship workflow depends on.
// All sends are best-effort: callers log failures and carry on.
type Mailer interface {
	SendRelationshipRequestEmail(ctx context.Context, toEmail, toName, studentName, token string) error
	SendStudentInitiatedEmail(ctx context.Context, toEmail, toName, studentName, token string, hasAccount bool) error
	SendWelcomeEmail(ctx context.Context, toEmail, toName string) error
}

// EmailService sends emails via Amazon SES
type EmailService struct {
	client     *sesv2.Client
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
}

// NewEmailService creates a new email service. With no from-address
// configured the service starts disabled and skips every send.
func NewEmailService(awsRegion, fromEmail, fromName, appBaseURL string) (*EmailService, error) {
	if fromEmail == "" {
		log.Println("Email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false}, nil
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(awsRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sesv2.NewFromConfig(cfg)

	log.Printf("Email service enabled: from=%s, region=%s", fromEmail, awsRegion)

	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
	}, nil
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// SendRelationshipRequestEmail notifies a parent that a relationship with a
// student awaits their confirmation, with verify and reject links embedding
// the token.
func (s *EmailService) SendRelationshipRequestEmail(ctx context.Context, toEmail, toName, studentName, token string) error {
	if !s.enabled {
		log.Printf("Skipping email send (service disabled): relationship request to %s", toEmail)
		return nil
	}

	verifyLink := fmt.Sprintf("%s/parent-verification/verify?token=%s", s.appBaseURL, token)
	rejectLink := fmt.Sprintf("%s/parent-verification/reject?token=%s", s.appBaseURL, token)

	subject := "Confirm your relationship with " + studentName
	htmlBody := fmt.Sprintf(emailShell, "Relationship Confirmation", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>A relationship between your SchoolHub account and the student <strong>%s</strong> is waiting for your confirmation.</p>
			<p style="text-align: center;">
				<a href="%s" class="button">Confirm Relationship</a>
			</p>
			<p>If you do not recognise this student, you can reject the request instead:</p>
			<p style="word-break: break-all; font-size: 12px; color: #666;">%s</p>
			<p><strong>These links expire in 7 days.</strong></p>
`, toName, studentName, verifyLink, rejectLink))

	textBody := fmt.Sprintf(`Hi %s,

A relationship between your SchoolHub account and the student %s is waiting for your confirmation.

Confirm: %s
Reject: %s

These links expire in 7 days.

---
This is an automated email from SchoolHub. Please do not reply.
`, toName, studentName, verifyLink, rejectLink)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendStudentInitiatedEmail notifies the parent a student named. Parents with
// an existing account get a verification link; the rest get a registration
// prompt that carries the same token.
func (s *EmailService) SendStudentInitiatedEmail(ctx context.Context, toEmail, toName, studentName, token string, hasAccount bool) error {
	if !s.enabled {
		log.Printf("Skipping email send (service disabled): student-initiated request to %s", toEmail)
		return nil
	}

	if toName == "" {
		toName = "there"
	}

	var subject, htmlBody, textBody string
	if hasAccount {
		verifyLink := fmt.Sprintf("%s/parent-verification/verify?token=%s", s.appBaseURL, token)
		subject = studentName + " added you as their parent on SchoolHub"
		htmlBody = fmt.Sprintf(emailShell, "Confirm Your Student", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p><strong>%s</strong> listed you as their parent or guardian. Please confirm the relationship from your account.</p>
			<p style="text-align: center;">
				<a href="%s" class="button">Confirm Relationship</a>
			</p>
			<p><strong>This link expires in 48 hours.</strong></p>
`, toName, studentName, verifyLink))
		textBody = fmt.Sprintf(`Hi %s,

%s listed you as their parent or guardian on SchoolHub. Please confirm the relationship:
%s

This link expires in 48 hours.

---
This is an automated email from SchoolHub. Please do not reply.
`, toName, studentName, verifyLink)
	} else {
		registerLink := fmt.Sprintf("%s/parent-verification/register?token=%s", s.appBaseURL, token)
		subject = studentName + " invited you to SchoolHub"
		htmlBody = fmt.Sprintf(emailShell, "Create Your Parent Account", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p><strong>%s</strong> listed you as their parent or guardian on SchoolHub. Create an account to confirm the relationship and follow their progress.</p>
			<p style="text-align: center;">
				<a href="%s" class="button">Create Account</a>
			</p>
			<p><strong>This invitation expires in 48 hours.</strong></p>
`, toName, studentName, registerLink))
		textBody = fmt.Sprintf(`Hi %s,

%s listed you as their parent or guardian on SchoolHub. Create an account to confirm the relationship:
%s

This invitation expires in 48 hours.

---
This is an automated email from SchoolHub. Please do not reply.
`, toName, studentName, registerLink)
	}

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendWelcomeEmail greets a newly registered parent
func (s *EmailService) SendWelcomeEmail(ctx context.Context, toEmail, toName string) error {
	if !s.enabled {
		log.Printf("Skipping email send (service disabled): welcome to %s", toEmail)
		return nil
	}

	subject := "Welcome to SchoolHub!"
	htmlBody := fmt.Sprintf(emailShell, "Welcome to SchoolHub!", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>Your SchoolHub parent account is ready. Once your relationship with a student is verified you can follow their courses, grades and attendance from your dashboard.</p>
			<p style="text-align: center;">
				<a href="%s/login" class="button">Sign In</a>
			</p>
`, toName, s.appBaseURL))

	textBody := fmt.Sprintf(`Hi %s,

Your SchoolHub parent account is ready. Once your relationship with a student is verified you can follow their courses, grades and attendance from your dashboard.

Sign in: %s/login

---
This is an automated email from SchoolHub. Please do not reply.
`, toName, s.appBaseURL)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// emailShell is the shared HTML frame; the first argument is the header
// title, the second the content block.
const emailShell = `
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #2c5f8a; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.button { display: inline-block; padding: 12px 30px; background-color: #2c5f8a; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>%s</h1>
		</div>
		<div class="content">
%s
		</div>
		<div class="footer">
			<p>This is an automated email from SchoolHub. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	log.Printf("Email sent successfully: to=%s, subject=%s", toEmail, subject)
	return nil
}
