// Package recordstore reads the status record file and the talk history log written by the
// external recorder.
//
// Reads are best effort: the recorder may be rewriting a file while it is read, so a failed or
// partial read is reported to the caller, who treats it as "no update this cycle". Malformed rows
// and lines are skipped individually and never abort the rest of the file.
package recordstore
