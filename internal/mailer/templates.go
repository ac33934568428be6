package mailer

import (
	"fmt"
	"html"
)

// Outbound mail copy lives in code; ops change it through deploys.

// QRCodeEmail renders the entry-code mail for an attendee. The QR PNG
// rides along as an attachment.
func QRCodeEmail(eventName, attendeeName, qrToken string) (subject, text, htmlBody string) {
	name := html.EscapeString(attendeeName)
	subject = fmt.Sprintf("Your %s entry code", eventName)
	text = fmt.Sprintf("Hi %s,\n\nYour entry code for %s is %s.\nShow the attached QR code at the door.\n", attendeeName, eventName, qrToken)
	htmlBody = fmt.Sprintf(`
		<h2>See you at %s!</h2>
		<p>Hi %s,</p>
		<p>Your entry code is <strong style="font-size: 24px;">%s</strong>.</p>
		<p>Show the attached QR code at the door.</p>
	`, html.EscapeString(eventName), name, html.EscapeString(qrToken))
	return subject, text, htmlBody
}

// WalkInConfirmationEmail renders the confirmation for a self-registered
// walk-in, QR PNG attached.
func WalkInConfirmationEmail(eventName, attendeeName, qrToken string) (subject, text, htmlBody string) {
	name := html.EscapeString(attendeeName)
	subject = fmt.Sprintf("You're on the list for %s", eventName)
	text = fmt.Sprintf("Hi %s,\n\nYou're registered for %s. Your entry code is %s.\nShow the attached QR code at the door.\n", attendeeName, eventName, qrToken)
	htmlBody = fmt.Sprintf(`
		<h2>You're on the list!</h2>
		<p>Hi %s,</p>
		<p>You're registered for %s. Your entry code is <strong style="font-size: 24px;">%s</strong>.</p>
		<p>Show the attached QR code at the door.</p>
	`, name, html.EscapeString(eventName), html.EscapeString(qrToken))
	return subject, text, htmlBody
}

// StaffInviteEmail renders the staff invitation with its accept link.
func StaffInviteEmail(eventName, acceptURL, role string) (subject, text, htmlBody string) {
	subject = fmt.Sprintf("You're invited to the %s staff team", eventName)
	text = fmt.Sprintf("You've been invited to join the %s staff team as %s.\n\nAccept the invite: %s\n\nThe link is single-use and expires.\n", eventName, role, acceptURL)
	htmlBody = fmt.Sprintf(`
		<h2>Join the %s staff team</h2>
		<p>You've been invited as <strong>%s</strong>.</p>
		<p><a href="%s" style="background-color: #1a73e8; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Accept invite</a></p>
		<p>The link is single-use and expires.</p>
	`, html.EscapeString(eventName), html.EscapeString(role), html.EscapeString(acceptURL))
	return subject, text, htmlBody
}
