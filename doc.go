// Package chromegcm provides a Go client for Chrome Cloud Messaging
// (the gcm_for_chrome push API).
//
// A Client holds an OAuth2 access token, either supplied directly or
// obtained once through a refresh-token exchange, and delivers a Message
// to each of its channel IDs with one POST per channel.
//
// Usage:
//
//	client, err := chromegcm.NewWithRefreshToken(ctx, chromegcm.RefreshCredentials{...})
//	msg, err := chromegcm.NewPlainTextMessage("hello", channelIDs)
//	result, err := client.Send(ctx, msg)
//	fmt.Println(result.Success(), result.Failed())
package chromegcm
