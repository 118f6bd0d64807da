package server

import "html/template"

// Terminal pages shown to the browser at the end of the authorization flow.
// The redirect is the last thing the user sees from the broker, so every page
// tells them to close the window; the application picks the result up through
// the poll API, never through the browser.

type failurePageData struct {
	Error            string
	ErrorDescription string
}

type badRequestPageData struct {
	Message string
}

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title></head>
<body style="font-family: Arial, sans-serif; text-align: center; padding: 50px;">
    <h1 style="color: #4caf50;">Authentication Successful</h1>
    <p>You can close this window and return to your application.</p>
    <p style="color: #666; font-size: 0.9em; margin-top: 30px;">
        Your authorization code has been securely stored and will be picked up by the application.
    </p>
    <script>
        // Try to close the window (works if opened via window.open)
        setTimeout(function() { window.close(); }, 2000);
    </script>
</body>
</html>
`))

var failurePage = template.Must(template.New("failure").Parse(`<!DOCTYPE html>
<html>
<head><title>Authentication Failed</title></head>
<body style="font-family: Arial, sans-serif; text-align: center; padding: 50px;">
    <h1 style="color: #d32f2f;">Authentication Failed</h1>
    <p><strong>Error:</strong> {{.Error}}</p>
    {{if .ErrorDescription}}<p><strong>Description:</strong> {{.ErrorDescription}}</p>
    {{end}}<p>You can close this window and try again.</p>
</body>
</html>
`))

var badRequestPage = template.Must(template.New("badRequest").Parse(`<!DOCTYPE html>
<html>
<head><title>Bad Request</title></head>
<body style="font-family: Arial, sans-serif; text-align: center; padding: 50px;">
    <h1>Error: {{.Message}}</h1>
</body>
</html>
`))

var notFoundPage = template.Must(template.New("notFound").Parse(`<!DOCTYPE html>
<html>
<head><title>Not Found</title></head>
<body style="font-family: Arial, sans-serif; text-align: center; padding: 50px;">
    <h1>404 - Not Found</h1>
    <p>Available endpoints:</p>
    <ul style="list-style: none;">
        <li>/callback - OAuth callback endpoint</li>
        <li>/health - Health check</li>
        <li>/api/callback/{state} - Retrieve callback data</li>
    </ul>
</body>
</html>
`))
