// Package marker recognises command-boundary markers inside raw terminal output.
//
// The shell hooks installed by package integration print an OSC 777 sequence
// around every command:
//
//	ESC ] 777 ; vibe ; CMD_START ; <secret> ; <command text> BEL
//	ESC ] 777 ; vibe ; CMD_END ; <secret> ; <exit status> BEL
//	ESC ] 777 ; vibe ; CWD ; <secret> ; <directory> BEL
//
// ST (ESC \) is accepted in place of BEL. A Parser is bound to one session
// secret and silently discards markers carrying any other secret, so programs
// run inside the shell cannot forge command events.
//
// The parser is a pure observer: callers keep forwarding every byte to the
// display unchanged and hand a copy to Feed.
//
// Example Usage:
//
//	p := marker.New(secret)
//	for chunk := range chunks {
//		for _, ev := range p.Feed(chunk) {
//			switch ev.Kind {
//			case marker.CommandStart:
//				log.Printf("running %q", ev.Payload)
//			case marker.CommandEnd:
//				log.Printf("exit %d", ev.ExitCode)
//			}
//		}
//	}
package marker
