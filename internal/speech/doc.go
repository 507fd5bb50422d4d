// Package speech is the text-to-speech sink for mqtt-voice.
//
// A Queue accepts text through Speak (the voice.Speaker contract) and plays
// it on a single worker goroutine through a Synthesizer. Two queueing modes
// are supported:
//
//   - enqueue: utterances are spoken in arrival order
//   - replace: a new utterance drops everything pending and interrupts the
//     one currently playing
//
// The Queue is not ready until its Synthesizer initialises. Speak before
// readiness, or after initialisation failed, is a silent no-op. Readiness
// changes are reported as status events so observers can see why nothing
// is being spoken.
//
// Synthesizers:
//   - LogSynthesizer writes each utterance to the log (development, CI)
//   - PollySynthesizer calls Amazon Polly and hands the audio to an AudioSink
//
// Audio sinks:
//   - DiscardSink drains the stream
//   - DirSink writes one file per utterance
//   - CommandSink pipes the stream to a player process such as "mpg123 -q -"
package speech
