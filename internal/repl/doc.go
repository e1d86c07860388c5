// Package repl is dwim's interactive loop.
//
// Each turn asks the shell for its directory and repository status, shows
// them in the prompt, reads a request, has it translated, confirms, and
// runs the command in the persistent shell. Every shell or translator call
// runs under a context from the supervisor so Ctrl-C abandons it.
//
//	/home/user/project
//	🟢🔴 dwim> show the five biggest files
//	Run 'du -ah . | sort -rh | head -n 5'? [Y/n/always]:
//	meaning> du -ah . | sort -rh | head -n 5
//	...
package repl
