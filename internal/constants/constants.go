// Package constants defines the constants shared by the ochazuke services.
package constants

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// WebServiceCmdName is the name of the web service command.
	WebServiceCmdName = "ochazuke-web-service"

	// FetchServiceCmdName is the name of the fetch service command.
	FetchServiceCmdName = "ochazuke-fetch-service"
)

// GitHub constants.
const (
	// UserAgent is sent with every request made to the GitHub API.
	UserAgent = "webcompatMonitor"

	// GitHubAPIRoot is the base URL for the GitHub REST API.
	GitHubAPIRoot = "https://api.github.com"

	// IssuesRepo is the owner/name pair of the repository the metrics track.
	IssuesRepo = "webcompat/web-bugs"

	// TriageMilestone is the GitHub milestone number of the triage queue.
	TriageMilestone = 2

	// TSCIDocURL points at the document describing where TSCI is calculated.
	TSCIDocURL = "https://tsci.webcompat.com/currentDoc.json"
)
