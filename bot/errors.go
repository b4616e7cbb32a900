package bot

import (
	"errors"

	"tunesync/downloader"
	"tunesync/store"
	"tunesync/subscription"
)

// friendlyError converts an internal error into a message fit for a chat
// reply. Classification follows the downloader error kinds so wording stays
// stable regardless of which platform produced the failure.
func friendlyError(err error) string {
	if errors.Is(err, subscription.ErrPassInProgress) {
		return "⏳ A sync for this collection is already running. Please wait for it to finish."
	}
	if errors.Is(err, store.ErrNotFound) {
		return "❓ No such subscription. Use /status to list what is being tracked."
	}

	var dlErr *downloader.Error
	if errors.As(err, &dlErr) {
		switch dlErr.Kind {
		case downloader.ErrInvalidURL:
			return "❌ That link doesn't look like a supported music URL. Send a song, album or playlist link."
		case downloader.ErrNetwork:
			return "🌐 Network error while talking to the music service. Please try again in a moment."
		case downloader.ErrAccessDenied:
			return "🔒 This content requires an account or is region locked. Check the configured credentials."
		case downloader.ErrTierUnavailable:
			return "🎧 No playable quality tier is available for this item."
		case downloader.ErrTimeout:
			return "⏱ The operation timed out. Please try again."
		case downloader.ErrFilesystem:
			return "💾 Could not write the file to disk. Check free space and permissions."
		case downloader.ErrUpstream:
			return "⚠️ The music service returned an unexpected response. Please try again later."
		case downloader.ErrUnsupported:
			return "🚫 This kind of link is not supported yet."
		}
	}

	return "❌ Something went wrong while processing your request. Please try again later."
}
