package mail

import (
	"bytes"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// Composer renders the application's emails with links into the frontend.
type Composer struct {
	frontendURL string
}

func NewComposer(frontendURL string) *Composer {
	return &Composer{frontendURL: strings.TrimRight(frontendURL, "/")}
}

type content struct {
	Heading   string
	Lines     []string
	Action    string
	ActionURL string
	Footnote  string
	Year      int
}

var htmlLayout = template.Must(template.New("html").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #121212; color: white; border-radius: 8px;">
  <h2 style="color: #FFDE59; text-align: center;">{{.Heading}}</h2>
  {{range .Lines}}<p>{{.}}</p>
  {{end}}{{if .ActionURL}}<div style="text-align: center; margin: 30px 0;">
    <a href="{{.ActionURL}}" style="background-color: #FFDE59; color: black; padding: 12px 24px; text-decoration: none; border-radius: 4px; font-weight: bold; display: inline-block;">{{.Action}}</a>
  </div>
  {{end}}{{if .Footnote}}<p>{{.Footnote}}</p>
  {{end}}<div style="margin-top: 30px; padding-top: 20px; border-top: 1px solid #333; text-align: center; font-size: 12px; color: #aaa;">
    <p>&copy; {{.Year}} YouFin. All rights reserved.</p>
  </div>
</div>`))

var textLayout = texttemplate.Must(texttemplate.New("text").Parse(`Hello,

{{range .Lines}}{{.}}
{{end}}{{if .ActionURL}}
{{.ActionURL}}
{{end}}{{if .Footnote}}
{{.Footnote}}
{{end}}
Best regards,
The YouFin Team
`))

func render(to, subject string, c content) Message {
	c.Year = time.Now().Year()
	var html, text bytes.Buffer
	// writes to a bytes.Buffer never fail
	_ = htmlLayout.Execute(&html, c)
	_ = textLayout.Execute(&text, c)
	return Message{To: to, Subject: subject, Text: text.String(), HTML: html.String()}
}

// Verification links to the email verification page.
func (c *Composer) Verification(to, token string) Message {
	return render(to, "Welcome to YouFin - Verify Your Email", content{
		Heading:   "Welcome to YouFin!",
		Lines:     []string{"Thank you for registering with YouFin. Please verify your email address using the link below."},
		Action:    "Verify Email Address",
		ActionURL: c.frontendURL + "/verify-email/" + token,
		Footnote:  "This link will expire in 24 hours. If you did not create an account, please ignore this email.",
	})
}

// PasswordReset links to the reset page.
func (c *Composer) PasswordReset(to, token string) Message {
	return render(to, "YouFin - Password Reset", content{
		Heading:   "Reset Your Password",
		Lines:     []string{"You requested a password reset for your YouFin account. Use the link below to choose a new password."},
		Action:    "Reset Password",
		ActionURL: c.frontendURL + "/reset-password/" + token,
		Footnote:  "This link will expire in 1 hour. If you did not request this, please ignore this email.",
	})
}

// TwoFactorSetup tells the user enrollment has started.
func (c *Composer) TwoFactorSetup(to string) Message {
	return render(to, "YouFin - Two-Factor Authentication Setup", content{
		Heading: "Two-Factor Authentication",
		Lines: []string{
			"You started setting up two-factor authentication for your YouFin account.",
			"Scan the QR code shown in the app with your authenticator and enter the 6-digit code to finish.",
		},
		Footnote: "If you did not start this, change your password immediately.",
	})
}

// ApprovalRequest asks a parent to review a child's purchase.
func (c *Composer) ApprovalRequest(to, childName, amount, businessName string) Message {
	return render(to, "YouFin - Purchase awaiting your approval", content{
		Heading: "Purchase Approval Needed",
		Lines: []string{
			childName + " spent " + amount + "€ at " + businessName + ".",
			"This purchase is above the automatic approval limit and is waiting for your review.",
		},
		Action:    "Review Purchase",
		ActionURL: c.frontendURL + "/dashboard",
	})
}
