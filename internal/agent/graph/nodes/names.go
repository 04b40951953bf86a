package nodes

// Graph node keys.
const (
	NodeInputConverter    = "input_converter"
	NodeNameCollector     = "name_collector"
	NodeClassifier        = "classifier"
	NodeGenreSearch       = "genre_search"
	NodeLocationSearch    = "location_search"
	NodeDateSearch        = "date_search"
	NodeCannedReply       = "canned_reply"
	NodeResponseFinalizer = "response_finalizer"
)
