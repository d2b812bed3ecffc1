package screenshot

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/snapgate/snapgate/pkg/browserpool"
)

// unexpectedErrorsScript collects visible alert messages and replaces
// their bodies with a neutral message so stack traces do not leak into
// the captured image. Returns the collected messages as a JSON array.
const unexpectedErrorsScript = `() => {
	const alerts = Array.from(document.querySelectorAll("[role='alert'], .alert-danger"));
	const messages = [];
	alerts.forEach((el) => {
		const text = (el.innerText || '').trim();
		if (text) {
			messages.push(text);
			el.innerText = 'Unexpected error';
		}
	});
	return messages;
}`

// scanUnexpectedErrors logs any error indicators found in the DOM. It
// never fails the screenshot.
func scanUnexpectedErrors(driver browserpool.Driver) []string {
	raw, err := driver.Eval(unexpectedErrorsScript)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to scan page for unexpected errors")
		return nil
	}

	var messages []string
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		log.Debug().Err(err).Msg("Unexpected-error scan returned unparseable result")
		return nil
	}

	for _, msg := range messages {
		log.Warn().Str("alert", msg).Msg("Unexpected error on screenshot page")
	}
	return messages
}
