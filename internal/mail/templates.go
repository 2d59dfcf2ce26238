package mail

import "fmt"

// Message is a rendered mail ready to hand to a Dispatcher.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

const layout = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222; max-width: 560px; margin: 0 auto;">
  <h2 style="color: #2c5f8a;">EOTY</h2>
  %s
  <p style="color: #888; font-size: 12px;">If you did not request this, you can safely ignore this email.</p>
</body>
</html>`

// VerificationMessage carries both the email verification link and the
// sign-in code so new accounts get a single mail covering both steps.
func VerificationMessage(firstName, code, link string) Message {
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
  <p>Welcome! Please verify your email address by clicking the link below:</p>
  <p><a href="%s" style="background: #2c5f8a; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 4px;">Verify Email</a></p>
  <p>Your sign-in code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">%s</p>
  <p>The code expires in 10 minutes; the link stays valid for 24 hours.</p>`,
		firstName, link, code,
	)
	return Message{
		Subject: "EOTY Email Verification",
		HTML:    fmt.Sprintf(layout, body),
		Text: fmt.Sprintf(
			"Hi %s,\n\nVerify your email address: %s\n\nYour sign-in code is %s (expires in 10 minutes).\n",
			firstName, link, code,
		),
	}
}

// ResendVerificationMessage carries only the verification link, for
// accounts that already exist but never confirmed their address.
func ResendVerificationMessage(firstName, link string) Message {
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
  <p>Here is a fresh link to verify your email address:</p>
  <p><a href="%s" style="background: #2c5f8a; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 4px;">Verify Email</a></p>
  <p>The link stays valid for 24 hours.</p>`,
		firstName, link,
	)
	return Message{
		Subject: "EOTY Email Verification",
		HTML:    fmt.Sprintf(layout, body),
		Text:    fmt.Sprintf("Hi %s,\n\nVerify your email address: %s\n", firstName, link),
	}
}

// TwoFactorMessage carries a sign-in code for an existing account.
func TwoFactorMessage(firstName, code string) Message {
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
  <p>Your sign-in code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">%s</p>
  <p>The code expires in 10 minutes.</p>`,
		firstName, code,
	)
	return Message{
		Subject: "Your EOTY sign-in code",
		HTML:    fmt.Sprintf(layout, body),
		Text:    fmt.Sprintf("Hi %s,\n\nYour sign-in code is %s. It expires in 10 minutes.\n", firstName, code),
	}
}

// PasswordResetMessage carries a single-use reset link.
func PasswordResetMessage(firstName, link string) Message {
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
  <p>We received a request to reset your password. Click the link below to choose a new one:</p>
  <p><a href="%s" style="background: #2c5f8a; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 4px;">Reset Password</a></p>
  <p>The link expires in 60 minutes and can only be used once.</p>`,
		firstName, link,
	)
	return Message{
		Subject: "Reset your EOTY password",
		HTML:    fmt.Sprintf(layout, body),
		Text:    fmt.Sprintf("Hi %s,\n\nReset your password: %s\n\nThe link expires in 60 minutes.\n", firstName, link),
	}
}

// WelcomeMessage greets a user whose account arrived through a
// federated provider, so no verification step is needed.
func WelcomeMessage(firstName string) Message {
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
  <p>Your account is ready. Sign in any time to pick up your courses, quizzes and forum discussions.</p>`,
		firstName,
	)
	return Message{
		Subject: "Welcome to EOTY",
		HTML:    fmt.Sprintf(layout, body),
		Text:    fmt.Sprintf("Hi %s,\n\nYour account is ready.\n", firstName),
	}
}
