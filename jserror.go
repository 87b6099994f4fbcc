/*
Package jserror is the Error stack-trace machinery of a small JavaScript
object model: trace capture at throw time, the lazily formatted stack
property, Error.prototype.toString, and the CallSite view handed to an
Error.prepareStackTrace hook.

Script is modelled as Go bodies over compiled code blocks. A body receives
its Frame, moves its program counter with At and calls, constructs or throws
through the frame, so captured traces carry real code block and bytecode
offset pairs that resolve through module debug info.
*/
package jserror
