package whatsweb

import (
	"errors"

	"github.com/hay-kot/wasend/internal/core/session"
)

// probeScript reports the page state consumed by watcher.observe.
const probeScript = `() => {
	const qr = document.querySelector('div[data-ref]');
	const progress = document.querySelector('progress');
	return {
		qr: qr ? (qr.getAttribute('data-ref') || '') : '',
		chats: !!document.querySelector('#pane-side'),
		progress: progress ? Math.round(Number(progress.value) || 0) : -1,
	};
}`

// resolveScript looks up the identity registered for a phone number.
const resolveScript = `async (user) => {
	try {
		const wid = window.require('WAWebWidFactory').createWid(user + '@c.us');
		const res = await window.require('WAWebQueryExistsJob').queryWidExists(wid);
		if (!res || !res.wid) {
			return { ok: true, found: false };
		}
		return { ok: true, found: true, user: res.wid.user, server: res.wid.server };
	} catch (e) {
		return { ok: false, code: 'resolve_failed', message: String((e && e.message) || e) };
	}
}`

// sendScript delivers a text message to a serialized identity.
const sendScript = `async (to, body) => {
	try {
		const wid = window.require('WAWebWidFactory').createWid(to);
		const found = await window.require('WAWebFindChatAction').findOrCreateLatestChat(wid);
		const chat = found && found.chat;
		if (!chat) {
			return { ok: false, code: 'not_registered', message: 'no chat for ' + to };
		}
		await window.require('WAWebSendTextMsgChatAction').sendTextMsgToChat(chat, body);
		return { ok: true };
	} catch (e) {
		const message = String((e && e.message) || e);
		const code = /invalid wid|\bLID\b/i.test(message) ? 'invalid_wid' : 'send_failed';
		return { ok: false, code: code, message: message };
	}
}`

// Result codes returned by the scripts.
const (
	codeNotRegistered = "not_registered"
	codeInvalidWid    = "invalid_wid"
)

// scriptResult is the structured value every script resolves to.
type scriptResult struct {
	OK      bool   `json:"ok"`
	Found   bool   `json:"found"`
	User    string `json:"user"`
	Server  string `json:"server"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// err converts a failed result into an error, typed when the script
// recognized the failure.
func (r scriptResult) err() error {
	if r.OK {
		return nil
	}

	msg := r.Message
	if msg == "" {
		msg = r.Code
	}

	switch r.Code {
	case codeNotRegistered:
		return session.NewError(session.KindRecipientNotRegistered, msg, nil)
	case codeInvalidWid:
		return session.NewError(session.KindInvalidAddressFormat, msg, nil)
	default:
		return errors.New(msg)
	}
}
