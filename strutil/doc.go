package strutil

// strutil holds the string primitives that header encoding relies on. All of
// them count and slice by Unicode code point rather than by byte, and the
// length/multibyte checks look at HTML-entity-decoded text since callers
// often hand us names that were escaped for a web page.
