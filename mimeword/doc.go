package mimeword

// mimeword folds header text, mostly the display names that go into From,
// To and Reply-To, into RFC 2047 "B" encoded-words. Short ASCII text passes
// through untouched. Everything else is split into base64 encoded-words of
// at most 75 characters each, and with UTF-8 no word ever ends in the middle
// of a code point.
