package bootimg

import "github.com/122slavo122/DualBootPatcher/internal/common"

func alignPage(pos uint64, pageSize uint32) uint64 {
	return common.AlignUp(pos, uint64(pageSize))
}

func pagePadding(pos uint64, pageSize uint32) uint64 {
	return common.PagePadding(pos, uint64(pageSize))
}
