// Package notify decides when a print job deserves a Telegram notification
// and delivers it.
//
// Notifier watches progress samples (percent complete and Z height) and a
// recurring timer. Percent and height each keep a watermark: a sample fires
// when it is a multiple of the configured step and above the watermark, and a
// sample more than one step below the watermark rewinds it (a restarted job).
// Deliveries go through Fanout, which attaches a camera snapshot when one is
// available and sends to the primary chat and every broadcast group.
// Asynchronous deliveries are queued on the task engine, at most six of a
// kind in flight.
package notify
