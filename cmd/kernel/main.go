// Command kernel is Zixiao's entry point: the first Go code that runs
// once the architecture's boot assembly (stack set up, BSS zeroed — out
// of scope here) has handed off. It wires a raw character sink
// to kernel.Boot, brings up every subsystem, and starts the scheduler.
//
// This never returns under normal operation; a return here would only
// happen if something upstream of kernel.Boot already panicked.
package main

import (
	"zixiao/kernel"
)

func idle() {
	for {
		archIdleWait()
	}
}

func main() {
	k, err := kernel.Boot(putChar, idle)
	if err != nil {
		panic(err)
	}
	k.Console.Write("zixiao: boot complete, starting scheduler\n")
	k.Start()
	idle()
}
