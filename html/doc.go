package html

// html derives the text/plain alternative of an HTML email body. It's not
// concerned with the lower-level logic involved in sending the email, and
// it doesn't generate HTML: the caller's body goes out as is.
