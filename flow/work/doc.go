// Package work provides the concrete WorkHolders used by cepflow graphs.
//
// Every WorkHolder embeds flow.Channels for its channel tables. Kernels are
// deliberately simple sample-wise operations; New builds one by kind name for
// graph description files.
package work
