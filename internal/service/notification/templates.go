package notification

import (
	"bytes"
	"html/template"
)

const (
	subjectContact     = "You have received a message from someone interested in contacting you regarding your application."
	subjectAppointment = "New Appointment Scheduled for You!"
	subjectNewInquiry  = "New Inquiry is waiting for your response!"
	subjectAnswered    = "Your inquiry has been answered!"
)

const layout = `{{define "header"}}<html><body style="font-family: Arial, sans-serif;"><h1 style="color:royalblue;">Hi! It's CareLink</h1>{{end}}
{{define "footer"}}<p>For more details, check the website in your profile.</p></body></html>{{end}}

{{define "contact"}}{{template "header"}}<p>Information:</p><p>Message: {{.Message}}</p><p>From this Email Address: {{.SenderEmail}}</p>{{template "footer"}}{{end}}

{{define "appointment"}}{{template "header"}}<p>We are pleased to inform you that a new meeting has been scheduled for you with the following details:</p><ul><li><strong>Doctor:</strong> {{.DoctorName}}</li><li><strong>Patient:</strong> {{.PatientName}}</li><li><strong>Date:</strong> {{.Date}}</li></ul>{{template "footer"}}{{end}}

{{define "new_inquiry"}}{{template "header"}}<p>A new inquiry is waiting for you with these details:</p><p>From {{.SenderRole}}: {{.SenderName}}</p><p>To you: {{.RecipientName}}</p>{{template "footer"}}{{end}}

{{define "answered"}}{{template "header"}}<p>A new inquiry has been answered with these details:</p><p>Doctor: {{.DoctorName}}</p><p>To you: {{.RecipientName}}</p>{{template "footer"}}{{end}}`

var bodies = template.Must(template.New("notification").Parse(layout))

type contactBody struct {
	Message     string
	SenderEmail string
}

type appointmentBody struct {
	DoctorName  string
	PatientName string
	Date        string
}

type newInquiryBody struct {
	SenderRole    string
	SenderName    string
	RecipientName string
}

type answeredBody struct {
	DoctorName    string
	RecipientName string
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
