package models

// PageStatus represents the processing status of a page in the visited store
type PageStatus string

const (
	PageStatusUnset    PageStatus = ""          // Zero value = unset/unknown
	PageStatusSuccess  PageStatus = "success"   // Page fetched successfully
	PageStatusFailure  PageStatus = "failure"   // Page fetch exhausted retries or was disallowed
	PageStatusNotFound PageStatus = "not_found" // Page not in store
	PageStatusDBError  PageStatus = "db_error"  // Store error occurred
)

// String implements fmt.Stringer for logging
func (s PageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsVisited returns true if the status marks the page as visited (fetched or given up on)
func (s PageStatus) IsVisited() bool {
	switch s {
	case PageStatusSuccess, PageStatusFailure:
		return true
	}
	return false
}
